package normalize

import (
	"fmt"
	"sort"
	"strings"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/wcag"

	"gopkg.in/yaml.v3"
)

// Rule maps one tool issue code to canonical fields. An empty Severity
// defers to the table's native severity vocabulary.
type Rule struct {
	IssueType string          `yaml:"issue_type"`
	Severity  domain.Severity `yaml:"severity,omitempty"`
	WCAG      []string        `yaml:"wcag"`
}

// Table is the declarative mapping for one tool.
type Table struct {
	Tool            domain.ToolName            `yaml:"tool"`
	Scope           []string                   `yaml:"scope"`
	Severities      map[string]domain.Severity `yaml:"severities"`
	DefaultSeverity domain.Severity            `yaml:"default_severity"`
	Rules           map[string]Rule            `yaml:"rules"`

	scope map[string]struct{}
}

// Resolved is an issue after table lookup.
type Resolved struct {
	IssueType string
	Severity  domain.Severity
	Criteria  []string
	Mapped    bool
}

// ParseTable decodes a table document. Call Validate before use.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode mapping table: %w", err)
	}
	return &t, nil
}

// Validate checks the table against the reference criteria and the canonical
// issue types, and indexes its scope. Scope is the explicit scope list plus
// every criterion a rule maps to.
func (t *Table) Validate(ref *wcag.Reference) error {
	if _, err := domain.ParseToolName(string(t.Tool)); err != nil {
		return fmt.Errorf("mapping table: %w", err)
	}
	if t.DefaultSeverity == "" {
		t.DefaultSeverity = domain.SeverityModerate
	}
	if !t.DefaultSeverity.Valid() {
		return fmt.Errorf("%s table: invalid default_severity %q", t.Tool, t.DefaultSeverity)
	}

	native := make(map[string]domain.Severity, len(t.Severities))
	for k, sev := range t.Severities {
		if !sev.Valid() {
			return fmt.Errorf("%s table: native severity %q maps to invalid %q", t.Tool, k, sev)
		}
		native[strings.ToLower(k)] = sev
	}
	t.Severities = native

	t.scope = map[string]struct{}{}
	for _, id := range t.Scope {
		if !ref.Contains(id) {
			return fmt.Errorf("%s table: scope criterion %q is not a WCAG success criterion", t.Tool, id)
		}
		t.scope[id] = struct{}{}
	}

	codes := make([]string, 0, len(t.Rules))
	for code := range t.Rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		r := t.Rules[code]
		if !IsIssueType(r.IssueType) {
			return fmt.Errorf("%s table: rule %q: unknown issue type %q", t.Tool, code, r.IssueType)
		}
		if r.Severity != "" && !r.Severity.Valid() {
			return fmt.Errorf("%s table: rule %q: invalid severity %q", t.Tool, code, r.Severity)
		}
		for _, id := range r.WCAG {
			if !ref.Contains(id) {
				return fmt.Errorf("%s table: rule %q: %q is not a WCAG success criterion", t.Tool, code, id)
			}
			t.scope[id] = struct{}{}
		}
	}
	return nil
}

// InScope reports whether the tool is able to test criterion id.
func (t *Table) InScope(id string) bool {
	_, ok := t.scope[id]
	return ok
}

// ScopeIDs lists the indexed scope in ascending order.
func (t *Table) ScopeIDs() []string {
	ids := make([]string, 0, len(t.scope))
	for id := range t.scope {
		ids = append(ids, id)
	}
	return domain.SortCriteria(ids)
}

// Lookup finds the rule for code. Dotted codes fall back to shorter
// prefixes, so "1_4_3.G18.Fail" matches a rule for "1_4_3.G18".
func (t *Table) Lookup(code string) (Rule, bool) {
	for c := code; c != ""; {
		if r, ok := t.Rules[c]; ok {
			return r, true
		}
		i := strings.LastIndex(c, ".")
		if i < 0 {
			break
		}
		c = c[:i]
	}
	return Rule{}, false
}

// Severity resolves a native severity label through the table vocabulary.
func (t *Table) Severity(native string) domain.Severity {
	if sev, ok := t.Severities[strings.ToLower(strings.TrimSpace(native))]; ok {
		return sev
	}
	if t.DefaultSeverity.Valid() {
		return t.DefaultSeverity
	}
	return domain.SeverityModerate
}

// Resolve maps an issue to canonical fields. Codes without a rule keep a
// tool-qualified issue type and fall back to the tool's criterion hints that
// the reference knows.
func (t *Table) Resolve(is Issue, ref *wcag.Reference) Resolved {
	if r, ok := t.Lookup(is.Code); ok {
		sev := r.Severity
		if sev == "" {
			sev = t.Severity(is.Severity)
		}
		return Resolved{
			IssueType: r.IssueType,
			Severity:  sev,
			Criteria:  domain.SortCriteria(append([]string(nil), r.WCAG...)),
			Mapped:    true,
		}
	}

	var hints []string
	for _, id := range is.Criteria {
		if ref.Contains(id) {
			hints = append(hints, id)
		}
	}
	return Resolved{
		IssueType: string(t.Tool) + "/" + is.Code,
		Severity:  t.Severity(is.Severity),
		Criteria:  domain.SortCriteria(hints),
	}
}
