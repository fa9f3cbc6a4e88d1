package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var pa11ySC = regexp.MustCompile(`^(\d)_(\d+)_(\d+)`)

type pa11yIssue struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	Selector string `json:"selector"`
	Context  string `json:"context"`
}

// DecodePa11y reads `pa11y --reporter json` output. HTML_CodeSniffer codes
// such as WCAG2AA.Principle1.Guideline1_1.1_1_1.H37 are shortened to the
// part after the guideline, here 1_1_1.H37.
func DecodePa11y(payload []byte) ([]Issue, error) {
	var raw []pa11yIssue
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("pa11y: decode issues: %w", err)
	}

	issues := make([]Issue, 0, len(raw))
	for i, r := range raw {
		if r.Code == "" {
			return nil, fmt.Errorf("pa11y: issue %d has no code", i)
		}
		code := pa11yCode(r.Code)
		var hints []string
		if m := pa11ySC.FindStringSubmatch(code); m != nil {
			hints = []string{m[1] + "." + m[2] + "." + m[3]}
		}
		issues = append(issues, Issue{
			Code:     code,
			Selector: r.Selector,
			Message:  r.Message,
			Severity: r.Type,
			Criteria: hints,
		})
	}
	return issues, nil
}

func pa11yCode(code string) string {
	parts := strings.Split(code, ".")
	for i, p := range parts {
		if strings.HasPrefix(p, "Guideline") && i+1 < len(parts) {
			return strings.Join(parts[i+1:], ".")
		}
	}
	return code
}
