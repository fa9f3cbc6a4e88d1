package consolidator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/normalize"
	"bytemomo/narwhal/internal/wcag"

	log "github.com/sirupsen/logrus"
)

// Consolidator turns the tool runs of one URL into a single report.
type Consolidator interface {
	Consolidate(runs []domain.ToolRun) (*domain.ConsolidatedReport, error)
}

// PageLevelMatch decides when two findings without a selector are merged.
type PageLevelMatch string

const (
	// MatchExactMessage merges page-level findings only when issue type and
	// message are identical.
	MatchExactMessage PageLevelMatch = "exact_message"
	// MatchIssueType merges every page-level finding of the same issue type.
	MatchIssueType PageLevelMatch = "issue_type"
)

// ParsePageLevelMatch validates a policy name. Empty selects the default.
func ParsePageLevelMatch(s string) (PageLevelMatch, error) {
	switch PageLevelMatch(s) {
	case "", MatchExactMessage:
		return MatchExactMessage, nil
	case MatchIssueType:
		return MatchIssueType, nil
	default:
		return "", fmt.Errorf("unknown page level match policy %q", s)
	}
}

// Engine is the rule-based Consolidator.
type Engine struct {
	ref       *wcag.Reference
	profiles  *normalize.Registry
	pageLevel PageLevelMatch
	log       *log.Entry
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

func WithPageLevelMatch(p PageLevelMatch) Option {
	return func(e *Engine) { e.pageLevel = p }
}

func WithLogger(l *log.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the generated_at source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine over validated reference data and mapping profiles.
func New(ref *wcag.Reference, profiles *normalize.Registry, opts ...Option) (*Engine, error) {
	if ref == nil {
		return nil, fmt.Errorf("consolidator: wcag reference is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("consolidator: mapping profiles are required")
	}
	e := &Engine{
		ref:       ref,
		profiles:  profiles,
		pageLevel: MatchExactMessage,
		log:       log.NewEntry(log.StandardLogger()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := ParsePageLevelMatch(string(e.pageLevel)); err != nil {
		return nil, err
	}
	return e, nil
}

// candidate is one normalized raw issue before deduplication.
type candidate struct {
	tool      domain.ToolName
	code      string
	issueType string
	severity  domain.Severity
	criteria  []string
	selector  string
	message   string
	at        time.Time
}

type gapKey struct {
	tool domain.ToolName
	code string
}

// Consolidate normalizes every succeeded run, merges duplicates, orders the
// result and derives coverage and statistics. Runs that did not succeed only
// contribute to tool_runs. The only error is a run for a tool without a
// mapping profile.
func (e *Engine) Consolidate(runs []domain.ToolRun) (*domain.ConsolidatedReport, error) {
	toolRuns := make([]domain.ToolRun, len(runs))
	copy(toolRuns, runs)
	sort.SliceStable(toolRuns, func(i, j int) bool {
		if toolRuns[i].Tool != toolRuns[j].Tool {
			return toolRuns[i].Tool < toolRuns[j].Tool
		}
		return toolRuns[i].StartedAt.Before(toolRuns[j].StartedAt)
	})

	var raw []candidate
	var warnings []string
	gaps := map[gapKey]int{}
	usable := map[domain.ToolName]*normalize.Profile{}
	hits := map[domain.ToolName]map[string]bool{}

	for _, run := range toolRuns {
		l := e.log.WithFields(log.Fields{"tool": run.Tool, "status": run.Status})
		if !run.Succeeded() {
			l.Debug("Skipping tool run without payload")
			continue
		}
		p, ok := e.profiles.Lookup(run.Tool)
		if !ok {
			return nil, fmt.Errorf("consolidator: no mapping profile for tool %q", run.Tool)
		}
		issues, err := p.Decode(run.RawPayload)
		if err != nil {
			l.WithError(err).Warn("Discarding undecodable payload")
			warnings = append(warnings, fmt.Sprintf("%s: payload discarded: %v", run.Tool, err))
			continue
		}
		usable[run.Tool] = p
		if hits[run.Tool] == nil {
			hits[run.Tool] = map[string]bool{}
		}

		for _, is := range issues {
			res := p.Table.Resolve(is, e.ref)
			if !res.Mapped {
				gaps[gapKey{run.Tool, is.Code}]++
			}
			for _, id := range res.Criteria {
				hits[run.Tool][id] = true
			}
			raw = append(raw, candidate{
				tool:      run.Tool,
				code:      is.Code,
				issueType: res.IssueType,
				severity:  res.Severity,
				criteria:  res.Criteria,
				selector:  normalize.NormalizeSelector(is.Selector),
				message:   is.Message,
				at:        run.FinishedAt,
			})
		}
		l.WithField("issues", len(issues)).Debug("Normalized tool run")
	}

	findings := e.merge(raw)
	report := &domain.ConsolidatedReport{
		Findings:    findings,
		ToolRuns:    toolRuns,
		Coverage:    e.coverage(findings, usable, hits),
		MappingGaps: mappingGaps(gaps),
		Warnings:    warnings,
		GeneratedAt: e.now().UTC(),
	}
	report.Summary = e.summarize(report, len(raw))

	e.log.WithFields(log.Fields{
		"raw_findings": len(raw),
		"findings":     len(findings),
		"mapping_gaps": len(report.MappingGaps),
	}).Info("Consolidation complete")
	return report, nil
}

// dedupKey groups located findings by selector and issue type. Page-level
// findings are grouped according to the page level policy.
func (e *Engine) dedupKey(c candidate) string {
	if c.selector != "" {
		return "L\x00" + c.selector + "\x00" + c.issueType
	}
	if e.pageLevel == MatchIssueType {
		return "P\x00" + c.issueType
	}
	return "P\x00" + c.issueType + "\x00" + c.message
}

type group struct {
	key     string
	finding domain.Finding
	lead    candidate
	tools   map[domain.ToolName]struct{}
	codes   map[string]struct{}
	crit    map[string]struct{}
}

func (e *Engine) merge(raw []candidate) []domain.Finding {
	groups := map[string]*group{}
	for _, c := range raw {
		key := e.dedupKey(c)
		g, ok := groups[key]
		if !ok {
			g = &group{
				key:   key,
				lead:  c,
				tools: map[domain.ToolName]struct{}{},
				codes: map[string]struct{}{},
				crit:  map[string]struct{}{},
			}
			g.finding = domain.Finding{
				IssueType: c.issueType,
				Selector:  c.selector,
				Severity:  c.severity,
				Timestamp: c.at,
			}
			groups[key] = g
		} else if leads(c, g.lead) {
			g.lead = c
		}

		f := &g.finding
		f.Severity = domain.MaxSeverity(f.Severity, c.severity)
		if c.at.Before(f.Timestamp) {
			f.Timestamp = c.at
		}
		f.Occurrences++
		g.tools[c.tool] = struct{}{}
		g.codes[string(c.tool)+":"+c.code] = struct{}{}
		for _, id := range c.criteria {
			g.crit[id] = struct{}{}
		}
	}

	findings := make([]domain.Finding, 0, len(groups))
	for _, g := range groups {
		f := g.finding
		f.ID = findingID(g.key)
		f.Message = g.lead.message
		f.WCAGCriteria = domain.SortCriteria(keys(g.crit))
		f.Unmapped = len(f.WCAGCriteria) == 0
		f.ConformanceLevel = e.ref.HighestLevel(f.WCAGCriteria)
		f.Codes = sortedStrings(keys(g.codes))
		for t := range g.tools {
			f.SourceTools = append(f.SourceTools, t)
		}
		sort.Slice(f.SourceTools, func(i, j int) bool { return f.SourceTools[i] < f.SourceTools[j] })
		findings = append(findings, f)
	}

	sort.Slice(findings, func(i, j int) bool { return less(findings[i], findings[j]) })
	return findings
}

// leads reports whether a should supply the merged message instead of b:
// higher severity first, then the earliest report. Tool and message break
// remaining ties so the outcome does not depend on input order.
func leads(a, b candidate) bool {
	if a.severity.Rank() != b.severity.Rank() {
		return a.severity.Rank() > b.severity.Rank()
	}
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	if a.tool != b.tool {
		return a.tool < b.tool
	}
	return a.message < b.message
}

// less orders findings by severity (most severe first), then WCAG criteria,
// then selector.
func less(a, b domain.Finding) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	if c := domain.CompareCriteriaSets(a.WCAGCriteria, b.WCAGCriteria); c != 0 {
		return c < 0
	}
	if a.Selector != b.Selector {
		return a.Selector < b.Selector
	}
	if a.IssueType != b.IssueType {
		return a.IssueType < b.IssueType
	}
	if a.Message != b.Message {
		return a.Message < b.Message
	}
	return a.ID < b.ID
}

func findingID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func mappingGaps(gaps map[gapKey]int) []domain.MappingGap {
	out := make([]domain.MappingGap, 0, len(gaps))
	for k, n := range gaps {
		out = append(out, domain.MappingGap{Tool: k.tool, Code: k.code, Occurrences: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tool != out[j].Tool {
			return out[i].Tool < out[j].Tool
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedStrings(s []string) []string {
	sort.Strings(s)
	return s
}
