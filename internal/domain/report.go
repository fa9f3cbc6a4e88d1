package domain

import "time"

// CoverageStatus is the user-facing verdict for one success criterion.
type CoverageStatus string

const (
	CoverageFailed     CoverageStatus = "failed"
	CoveragePassed     CoverageStatus = "passed"
	CoverageNotCovered CoverageStatus = "not_covered"
)

// CoverageEntry says whether a criterion was exercised in a run and with
// what outcome. NotCovered is never reported as passing.
type CoverageEntry struct {
	Criterion   string         `json:"criterion"`
	Title       string         `json:"title"`
	Level       Level          `json:"level"`
	Tested      bool           `json:"tested"`
	PassedCount int            `json:"passed_count"`
	FailedCount int            `json:"failed_count"`
	NotCovered  bool           `json:"not_covered"`
	Status      CoverageStatus `json:"status"`
	Tools       []ToolName     `json:"tools"`
}

// MappingGap records a tool issue code that had no mapping table entry.
type MappingGap struct {
	Tool        ToolName `json:"tool"`
	Code        string   `json:"code"`
	Occurrences int      `json:"occurrences"`
}

// Summary carries the statistics derived from a consolidated report.
type Summary struct {
	TotalFindings   int                    `json:"total_findings"`
	RawFindings     int                    `json:"raw_findings"`
	Unmapped        int                    `json:"unmapped"`
	BySeverity      map[Severity]int       `json:"by_severity"`
	ByTool          map[ToolName]int       `json:"by_tool"`
	ByLevel         map[Level]int          `json:"by_level"`
	ByPrinciple     map[string]int         `json:"by_principle"`
	ToolStatus      map[ToolName]RunStatus `json:"tool_status"`
	CoverageByState map[CoverageStatus]int `json:"coverage"`
}

// ConsolidatedReport is the engine's output for one URL.
type ConsolidatedReport struct {
	RunID       string                   `json:"run_id"`
	URL         string                   `json:"url"`
	Findings    []Finding                `json:"findings"`
	ToolRuns    []ToolRun                `json:"tool_runs"`
	Coverage    map[string]CoverageEntry `json:"coverage"`
	MappingGaps []MappingGap             `json:"mapping_gaps"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Summary     Summary                  `json:"summary"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// Artifacts lists the files a sink produced for one run.
type Artifacts struct {
	Directory string              `json:"directory"`
	Raw       map[ToolName]string `json:"raw,omitempty"`
	Report    string              `json:"report"`
	Summary   string              `json:"summary"`
	Coverage  string              `json:"coverage"`
}
