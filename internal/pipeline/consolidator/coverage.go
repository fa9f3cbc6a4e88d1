package consolidator

import (
	"sort"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/normalize"
)

// coverage builds one entry per reference criterion. A criterion counts as
// tested when a usable succeeded run declares it in scope or reported an
// issue against it. passed_count is the number of in-scope tools that
// reported nothing for it.
func (e *Engine) coverage(findings []domain.Finding, usable map[domain.ToolName]*normalize.Profile, hits map[domain.ToolName]map[string]bool) map[string]domain.CoverageEntry {
	failed := map[string]int{}
	for _, f := range findings {
		for _, id := range f.WCAGCriteria {
			failed[id]++
		}
	}

	tools := make([]domain.ToolName, 0, len(usable))
	for t := range usable {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })

	out := make(map[string]domain.CoverageEntry, e.ref.Len())
	for _, c := range e.ref.All() {
		entry := domain.CoverageEntry{
			Criterion:   c.ID,
			Title:       c.Title,
			Level:       c.Level,
			FailedCount: failed[c.ID],
			Tools:       []domain.ToolName{},
		}
		for _, t := range tools {
			inScope := usable[t].Table.InScope(c.ID)
			hit := hits[t][c.ID]
			if !inScope && !hit {
				continue
			}
			entry.Tools = append(entry.Tools, t)
			if inScope && !hit {
				entry.PassedCount++
			}
		}
		entry.Tested = len(entry.Tools) > 0
		entry.NotCovered = !entry.Tested

		switch {
		case entry.FailedCount > 0:
			entry.Status = domain.CoverageFailed
		case entry.Tested:
			entry.Status = domain.CoveragePassed
		default:
			entry.Status = domain.CoverageNotCovered
		}
		out[c.ID] = entry
	}
	return out
}
