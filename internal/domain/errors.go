package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks a tool that is not installed or not configured. Runs
// failing with it are reported as not_implemented, a scope gap rather than an
// error.
var ErrUnavailable = errors.New("analyzer unavailable")

// ErrArtifactExists is returned by sinks asked to overwrite an artifact with
// different content.
var ErrArtifactExists = errors.New("artifact already exists")

// AdapterError is a tool-level failure: non-zero exit, network failure or
// malformed output.
type AdapterError struct {
	Tool   ToolName
	Reason string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError wraps err with a reason for tool.
func NewAdapterError(tool ToolName, reason string, err error) *AdapterError {
	return &AdapterError{Tool: tool, Reason: reason, Err: err}
}

// AdapterUnavailable wraps ErrUnavailable with the reason the tool cannot run.
type AdapterUnavailable struct {
	Tool   ToolName
	Reason string
}

func (e *AdapterUnavailable) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Tool, ErrUnavailable, e.Reason)
}

func (e *AdapterUnavailable) Unwrap() error { return ErrUnavailable }

// Unavailable builds an AdapterUnavailable error.
func Unavailable(tool ToolName, format string, args ...any) error {
	return &AdapterUnavailable{Tool: tool, Reason: fmt.Sprintf(format, args...)}
}

// AdapterTimeout is recorded when an adapter exceeds its time budget.
type AdapterTimeout struct {
	Tool    ToolName
	Timeout time.Duration
}

func (e *AdapterTimeout) Error() string {
	return fmt.Sprintf("%s: exceeded timeout of %s", e.Tool, e.Timeout)
}
