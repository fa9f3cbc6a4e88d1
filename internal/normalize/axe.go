package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// axe tags encode criteria as wcag<principle><guideline><criterion>,
// e.g. wcag143 or wcag2410.
var axeWCAGTag = regexp.MustCompile(`^wcag(\d)(\d)(\d+)$`)

type axeResult struct {
	URL        string    `json:"url"`
	Violations []axeRule `json:"violations"`
}

type axeRule struct {
	ID     string    `json:"id"`
	Impact string    `json:"impact"`
	Tags   []string  `json:"tags"`
	Help   string    `json:"help"`
	Nodes  []axeNode `json:"nodes"`
}

type axeNode struct {
	Impact string            `json:"impact"`
	Target []json.RawMessage `json:"target"`
}

// DecodeAxe reads the output of `axe --stdout`: either an array of page
// results or a single result object. Only violations are reported;
// incomplete results need manual review and are skipped.
func DecodeAxe(payload []byte) ([]Issue, error) {
	var results []axeResult
	trimmed := bytes.TrimSpace(payload)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("axe: empty payload")
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, fmt.Errorf("axe: decode results: %w", err)
		}
	default:
		var single axeResult
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("axe: decode result: %w", err)
		}
		results = []axeResult{single}
	}

	var issues []Issue
	for _, res := range results {
		for _, v := range res.Violations {
			hints := axeCriteria(v.Tags)
			for _, n := range v.Nodes {
				impact := n.Impact
				if impact == "" {
					impact = v.Impact
				}
				sel, err := axeTarget(n.Target)
				if err != nil {
					return nil, fmt.Errorf("axe: rule %s: %w", v.ID, err)
				}
				issues = append(issues, Issue{
					Code:     v.ID,
					Selector: sel,
					Message:  v.Help,
					Severity: impact,
					Criteria: hints,
				})
			}
		}
	}
	return issues, nil
}

func axeCriteria(tags []string) []string {
	var out []string
	for _, tag := range tags {
		m := axeWCAGTag.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		out = append(out, m[1]+"."+m[2]+"."+m[3])
	}
	return out
}

// axeTarget flattens a node target. Entries are plain selectors or, for
// shadow DOM hosts, nested selector lists.
func axeTarget(target []json.RawMessage) (string, error) {
	var parts []string
	for _, raw := range target {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		var nested []string
		if err := json.Unmarshal(raw, &nested); err != nil {
			return "", fmt.Errorf("unsupported target %s", string(raw))
		}
		parts = append(parts, nested...)
	}
	return strings.Join(parts, " > "), nil
}
