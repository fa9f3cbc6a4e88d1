package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureJSONToFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "narwhal.log")
	l := logrus.New()

	closer := configure(l, &stderr, logrus.DebugLevel, FormatJSON, path)
	l.WithField("tool", "axe").Debug("Invoking analyzer")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, data)
	}
	if entry["tool"] != "axe" || entry["msg"] != "Invoking analyzer" {
		t.Fatalf("entry = %v", entry)
	}
	if !bytes.Equal(stderr.Bytes(), data) {
		t.Fatalf("stderr and file differ:\n%s\n%s", stderr.Bytes(), data)
	}
}

func TestConfigureTextAndBadFile(t *testing.T) {
	var stderr bytes.Buffer
	l := logrus.New()
	bad := filepath.Join(t.TempDir(), "missing", "dir", "x.log")

	closer := configure(l, &stderr, logrus.InfoLevel, "TEXT", bad)
	defer closer.Close()
	l.Debug("hidden")
	l.Info("visible")

	out := stderr.String()
	if !strings.Contains(out, "Could not create file for logging") {
		t.Fatalf("missing file error in %q", out)
	}
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=visible") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != logrus.InfoLevel {
		t.Fatalf("default level = %v, %v", lvl, err)
	}
	if lvl, err := ParseLevel("debug"); err != nil || lvl != logrus.DebugLevel {
		t.Fatalf("debug = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error")
	}
}
