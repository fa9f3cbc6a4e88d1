package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolName identifies one of the analyzers the orchestrator knows how to run.
// The set is closed: adding a tool means adding a constant here, an adapter,
// a payload decoder and a mapping table.
type ToolName string

const (
	ToolStructure  ToolName = "structure"
	ToolAxe        ToolName = "axe"
	ToolPa11y      ToolName = "pa11y"
	ToolLighthouse ToolName = "lighthouse"
)

// AllTools returns every supported tool in a stable order.
func AllTools() []ToolName {
	return []ToolName{ToolStructure, ToolAxe, ToolPa11y, ToolLighthouse}
}

// ParseToolName validates a tool identifier coming from configuration.
func ParseToolName(s string) (ToolName, error) {
	for _, t := range AllTools() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown analyzer %q", s)
}

// Category describes what kind of analysis the tool performs.
func (t ToolName) Category() string {
	switch t {
	case ToolStructure:
		return "structural/aria static analysis"
	case ToolAxe:
		return "keyboard/form automated scan"
	case ToolPa11y:
		return "dynamic-content scan"
	case ToolLighthouse:
		return "audit scan"
	default:
		return "unknown"
	}
}

// RunStatus is the terminal state of one adapter invocation.
type RunStatus string

const (
	StatusSucceeded      RunStatus = "succeeded"
	StatusFailed         RunStatus = "failed"
	StatusTimedOut       RunStatus = "timed_out"
	StatusNotImplemented RunStatus = "not_implemented"
)

// ToolRun records the outcome of one adapter invocation. It is created by the
// orchestrator and never modified after the adapter call returns, except for
// RawFile: the persisted payload relative to the run directory, filled in by
// the sink when the report is written.
type ToolRun struct {
	Tool        ToolName        `json:"tool_name"`
	Status      RunStatus       `json:"status"`
	RawPayload  json.RawMessage `json:"-"`
	RawFile     string          `json:"raw_file,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Succeeded reports whether the run carries a usable payload.
func (r ToolRun) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Duration is the wall time the adapter took.
func (r ToolRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
