package domain

import (
	"strings"
	"time"
)

// Severity is the canonical, ordered impact classification of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Severities lists every severity from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeveritySerious, SeverityModerate, SeverityMinor}
}

// Rank orders severities; higher is more severe. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySerious:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four canonical severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity is case-insensitive and reports false for unknown input.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Level is a WCAG conformance level.
type Level string

const (
	LevelA       Level = "A"
	LevelAA      Level = "AA"
	LevelAAA     Level = "AAA"
	LevelUnknown Level = "unknown"
)

func (l Level) Rank() int {
	switch l {
	case LevelA:
		return 1
	case LevelAA:
		return 2
	case LevelAAA:
		return 3
	default:
		return 0
	}
}

// Finding is one normalized accessibility issue. After consolidation a
// finding may represent the agreement of several tools.
type Finding struct {
	ID               string     `json:"id"`
	SourceTools      []ToolName `json:"source_tool"`
	IssueType        string     `json:"issue_type"`
	Message          string     `json:"message"`
	Severity         Severity   `json:"severity"`
	WCAGCriteria     []string   `json:"wcag_criteria"`
	Unmapped         bool       `json:"unmapped"`
	Selector         string     `json:"selector"`
	ConformanceLevel Level      `json:"conformance_level"`
	Codes            []string   `json:"codes"`
	Occurrences      int        `json:"occurrences"`
	Timestamp        time.Time  `json:"timestamp"`
}

// PageLevel reports whether the finding has no DOM locator.
func (f Finding) PageLevel() bool { return f.Selector == "" }
