package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/normalize"

	log "github.com/sirupsen/logrus"
)

const stderrTail = 512

// CLIAnalyzer wraps a command line accessibility tool that prints a JSON
// report on stdout.
type CLIAnalyzer struct {
	tool    domain.ToolName
	exec    Executor
	build   func(url string) Command
	okExits map[int]bool
	decode  normalize.Decoder
	log     *log.Entry
}

func (a *CLIAnalyzer) Name() domain.ToolName { return a.tool }

// Invoke runs the tool and returns its JSON report. The payload is decoded
// once here so that malformed output surfaces as an adapter error instead of
// a consolidation warning.
func (a *CLIAnalyzer) Invoke(ctx context.Context, url string) ([]byte, error) {
	cmd := a.build(url)
	a.log.WithFields(log.Fields{
		"command": cmd.Name,
		"args":    strings.Join(cmd.Args, " "),
		"image":   cmd.Image,
	}).Debug("Invoking analyzer")

	out, err := a.exec.Run(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnavailable):
			return nil, domain.Unavailable(a.tool, "%v", err)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, domain.NewAdapterError(a.tool, "execution failed", err)
		}
	}
	if !a.okExits[out.ExitCode] {
		return nil, domain.NewAdapterError(a.tool, fmt.Sprintf("exit status %d", out.ExitCode), errors.New(tail(out.Stderr)))
	}

	payload := bytes.TrimSpace(out.Stdout)
	if len(payload) == 0 {
		return nil, domain.NewAdapterError(a.tool, "empty output", errors.New(tail(out.Stderr)))
	}
	if _, err := a.decode(payload); err != nil {
		return nil, domain.NewAdapterError(a.tool, "malformed output", err)
	}
	return payload, nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTail {
		cut := len(s) - stderrTail
		for cut < len(s) && !utf8.RuneStart(s[cut]) {
			cut++
		}
		s = "..." + s[cut:]
	}
	if s == "" {
		return "no diagnostic output"
	}
	return s
}

// ceilSeconds rounds d up to whole seconds so short budgets never become 0.
func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// NewAxe runs the axe-core CLI. axe exits 0 whether or not violations were
// found.
func NewAxe(exec Executor, opts Options, l *log.Entry) *CLIAnalyzer {
	return &CLIAnalyzer{
		tool: domain.ToolAxe,
		exec: exec,
		build: func(url string) Command {
			args := []string{url, "--stdout", "--tags", withDefault(opts.Tags, "wcag2a,wcag2aa,wcag21a,wcag21aa,wcag22aa")}
			if opts.Timeout > 0 {
				args = append(args, "--timeout", strconv.FormatInt(ceilSeconds(opts.Timeout), 10))
			}
			return Command{
				Name:  withDefault(opts.Command, "axe"),
				Args:  append(args, opts.Args...),
				Image: opts.Image,
			}
		},
		okExits: map[int]bool{0: true},
		decode:  normalize.DecodeAxe,
		log:     l.WithField("tool", domain.ToolAxe),
	}
}

// NewPa11y runs pa11y with the HTML_CodeSniffer runner. Exit code 2 means
// the page has issues and is a successful scan.
func NewPa11y(exec Executor, opts Options, l *log.Entry) *CLIAnalyzer {
	return &CLIAnalyzer{
		tool: domain.ToolPa11y,
		exec: exec,
		build: func(url string) Command {
			args := []string{"--reporter", "json", "--standard", withDefault(opts.Standard, "WCAG2AA"), "--include-warnings"}
			if opts.IncludeNotices {
				args = append(args, "--include-notices")
			}
			if opts.Timeout > 0 {
				args = append(args, "--timeout", fmt.Sprintf("%d", opts.Timeout.Milliseconds()))
			}
			args = append(args, opts.Args...)
			return Command{
				Name:  withDefault(opts.Command, "pa11y"),
				Args:  append(args, url),
				Image: opts.Image,
			}
		},
		okExits: map[int]bool{0: true, 2: true},
		decode:  normalize.DecodePa11y,
		log:     l.WithField("tool", domain.ToolPa11y),
	}
}

// NewLighthouse runs the Lighthouse CLI restricted to the accessibility
// category.
func NewLighthouse(exec Executor, opts Options, l *log.Entry) *CLIAnalyzer {
	return &CLIAnalyzer{
		tool: domain.ToolLighthouse,
		exec: exec,
		build: func(url string) Command {
			args := []string{
				url,
				"--output=json",
				"--output-path=stdout",
				"--quiet",
				"--only-categories=accessibility",
				"--chrome-flags=" + withDefault(opts.ChromeFlags, "--headless=new --no-sandbox"),
			}
			return Command{
				Name:  withDefault(opts.Command, "lighthouse"),
				Args:  append(args, opts.Args...),
				Image: opts.Image,
			}
		},
		okExits: map[int]bool{0: true},
		decode:  normalize.DecodeLighthouse,
		log:     l.WithField("tool", domain.ToolLighthouse),
	}
}
