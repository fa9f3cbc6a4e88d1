// Package normalize turns tool-specific payloads into canonical issues using
// one declarative mapping table per tool.
package normalize

// Issue is a single tool-reported problem after payload decoding and before
// table lookup.
type Issue struct {
	Code     string
	Selector string
	Message  string
	// Severity is the tool's own vocabulary (axe impact, pa11y type, ...).
	Severity string
	// Criteria are WCAG ids the tool itself attached to the issue. They are
	// only consulted when the table has no rule for Code.
	Criteria []string
}

// Decoder parses one tool's raw payload.
type Decoder func(payload []byte) ([]Issue, error)

// IssueTypes is the canonical issue-type vocabulary. Mapping tables may only
// produce these values.
var IssueTypes = map[string]struct{}{
	"missing-alt-text":            {},
	"form-field-missing-label":    {},
	"button-name-missing":         {},
	"link-name-missing":           {},
	"link-missing-href":           {},
	"link-purpose-unclear":        {},
	"contrast-insufficient":       {},
	"missing-page-title":          {},
	"missing-document-language":   {},
	"invalid-document-language":   {},
	"language-of-parts-invalid":   {},
	"missing-main-landmark":       {},
	"missing-navigation-landmark": {},
	"bypass-blocks-missing":       {},
	"heading-order-skipped":       {},
	"empty-heading":               {},
	"missing-h1":                  {},
	"aria-invalid-role":           {},
	"aria-invalid-attribute":      {},
	"aria-broken-reference":       {},
	"aria-required-missing":       {},
	"positive-tabindex":           {},
	"keyboard-inaccessible":       {},
	"focus-not-visible":           {},
	"frame-missing-title":         {},
	"viewport-missing":            {},
	"zoom-disabled":               {},
	"list-structure-invalid":      {},
	"table-header-invalid":        {},
	"table-caption-missing":       {},
	"target-size-insufficient":    {},
	"missing-doctype":             {},
	"autocomplete-invalid":        {},
	"timing-refresh":              {},
	"moving-content":              {},
	"caption-missing":             {},
	"label-name-mismatch":         {},
	"nested-interactive":          {},
}

// IsIssueType reports whether t is part of the canonical vocabulary.
func IsIssueType(t string) bool {
	_, ok := IssueTypes[t]
	return ok
}
