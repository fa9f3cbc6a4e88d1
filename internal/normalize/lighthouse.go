package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Native severities produced for Lighthouse audits, derived from the score.
const (
	LighthouseFail    = "fail"
	LighthousePartial = "partial"
)

type lighthouseReport struct {
	Categories map[string]struct {
		AuditRefs []struct {
			ID string `json:"id"`
		} `json:"auditRefs"`
	} `json:"categories"`
	Audits map[string]lighthouseAudit `json:"audits"`
}

type lighthouseAudit struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Score            *float64 `json:"score"`
	ScoreDisplayMode string   `json:"scoreDisplayMode"`
	Details          struct {
		Items []struct {
			Node *struct {
				Selector string `json:"selector"`
			} `json:"node"`
		} `json:"items"`
	} `json:"details"`
}

// DecodeLighthouse reads a Lighthouse JSON report and returns one issue per
// failing node of every failing accessibility audit. Audits without nodes
// become a single page-level issue. Manual and not-applicable audits carry
// no score and are skipped.
func DecodeLighthouse(payload []byte) ([]Issue, error) {
	var rep lighthouseReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("lighthouse: decode report: %w", err)
	}
	cat, ok := rep.Categories["accessibility"]
	if !ok {
		return nil, fmt.Errorf("lighthouse: report has no accessibility category")
	}

	ids := make([]string, 0, len(cat.AuditRefs))
	for _, ref := range cat.AuditRefs {
		ids = append(ids, ref.ID)
	}
	sort.Strings(ids)

	var issues []Issue
	for _, id := range ids {
		a, ok := rep.Audits[id]
		if !ok || a.Score == nil || *a.Score >= 1 {
			continue
		}
		if a.ScoreDisplayMode == "manual" || a.ScoreDisplayMode == "notApplicable" {
			continue
		}
		sev := LighthouseFail
		if *a.Score > 0 {
			sev = LighthousePartial
		}

		emitted := false
		for _, item := range a.Details.Items {
			if item.Node == nil || item.Node.Selector == "" {
				continue
			}
			issues = append(issues, Issue{Code: id, Selector: item.Node.Selector, Message: a.Title, Severity: sev})
			emitted = true
		}
		if !emitted {
			issues = append(issues, Issue{Code: id, Message: a.Title, Severity: sev})
		}
	}
	return issues, nil
}
