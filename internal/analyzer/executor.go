package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"bytemomo/narwhal/internal/domain"
)

// Command describes one tool invocation independently of where it runs.
type Command struct {
	Name  string
	Args  []string
	Env   []string
	Image string
}

// Output is what a finished command produced. A non-zero ExitCode is not an
// error at this level; analyzers decide which codes are acceptable.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor starts a command and waits for it. Implementations must stop the
// command and release everything they allocated when ctx is done. A tool
// that cannot be started at all is reported with domain.ErrUnavailable.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// LocalExecutor runs tools installed on the host.
type LocalExecutor struct {
	// WaitDelay bounds how long to wait for output pipes after the process
	// was killed.
	WaitDelay time.Duration
	lookPath  func(string) (string, error)
}

func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{WaitDelay: 5 * time.Second, lookPath: exec.LookPath}
}

func (e *LocalExecutor) Run(ctx context.Context, c Command) (Output, error) {
	lookPath := e.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(c.Name)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, c.Name, err)
	}

	cmd := exec.CommandContext(ctx, bin, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.WaitDelay
	// Browsers spawned by the tool live in the same process group and are
	// killed together with it.
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	err = cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("run %s: %w", c.Name, err)
	}
	return out, nil
}
