package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log formats accepted by SetLoggerToStructured.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// SetLoggerToStructured configures the standard logrus logger. Output goes to
// stderr and, when filePath is set, is appended to that file as well. The
// returned closer releases the file.
func SetLoggerToStructured(level logrus.Level, format, filePath string) io.Closer {
	return configure(logrus.StandardLogger(), os.Stderr, level, format, filePath)
}

func configure(l *logrus.Logger, stderr io.Writer, level logrus.Level, format, filePath string) io.Closer {
	if strings.EqualFold(format, FormatText) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	l.SetLevel(level)

	if filePath == "" {
		l.SetOutput(stderr)
		return nopCloser{}
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		l.SetOutput(stderr)
		l.WithError(err).Error("Could not create file for logging")
		return nopCloser{}
	}
	l.SetOutput(io.MultiWriter(stderr, file))
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel accepts logrus level names; the empty string means info.
func ParseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}
