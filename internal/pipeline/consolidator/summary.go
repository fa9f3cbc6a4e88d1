package consolidator

import "bytemomo/narwhal/internal/domain"

func (e *Engine) summarize(report *domain.ConsolidatedReport, raw int) domain.Summary {
	s := domain.Summary{
		TotalFindings:   len(report.Findings),
		RawFindings:     raw,
		BySeverity:      map[domain.Severity]int{},
		ByTool:          map[domain.ToolName]int{},
		ByLevel:         map[domain.Level]int{},
		ByPrinciple:     map[string]int{},
		ToolStatus:      map[domain.ToolName]domain.RunStatus{},
		CoverageByState: map[domain.CoverageStatus]int{},
	}
	for _, sev := range domain.Severities() {
		s.BySeverity[sev] = 0
	}
	for _, run := range report.ToolRuns {
		s.ToolStatus[run.Tool] = run.Status
		s.ByTool[run.Tool] += 0
	}

	for _, f := range report.Findings {
		s.BySeverity[f.Severity]++
		s.ByLevel[f.ConformanceLevel]++
		if f.Unmapped {
			s.Unmapped++
		}
		for _, t := range f.SourceTools {
			s.ByTool[t]++
		}
		seen := map[string]bool{}
		for _, id := range f.WCAGCriteria {
			c, ok := e.ref.Lookup(id)
			if !ok || seen[c.Principle] {
				continue
			}
			seen[c.Principle] = true
			s.ByPrinciple[c.Principle]++
		}
	}

	for _, st := range []domain.CoverageStatus{domain.CoverageFailed, domain.CoveragePassed, domain.CoverageNotCovered} {
		s.CoverageByState[st] = 0
	}
	for _, entry := range report.Coverage {
		s.CoverageByState[entry.Status]++
	}
	return s
}
