package normalize

import (
	"encoding/json"
	"fmt"
)

// StructureReport is the payload of the built-in structure analyzer.
type StructureReport struct {
	URL    string           `json:"url"`
	Issues []StructureIssue `json:"issues"`
	Stats  map[string]int   `json:"stats,omitempty"`
}

// StructureIssue is one structural finding. Severity is "error", "warning"
// or "info".
type StructureIssue struct {
	Code     string   `json:"code"`
	Category string   `json:"category"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Selector string   `json:"selector,omitempty"`
	Context  string   `json:"context,omitempty"`
	WCAG     []string `json:"wcag,omitempty"`
}

// DecodeStructure reads a StructureReport payload.
func DecodeStructure(payload []byte) ([]Issue, error) {
	var rep StructureReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("structure: decode report: %w", err)
	}
	issues := make([]Issue, 0, len(rep.Issues))
	for i, si := range rep.Issues {
		if si.Code == "" {
			return nil, fmt.Errorf("structure: issue %d has no code", i)
		}
		issues = append(issues, Issue{
			Code:     si.Code,
			Selector: si.Selector,
			Message:  si.Message,
			Severity: si.Severity,
			Criteria: si.WCAG,
		})
	}
	return issues, nil
}
