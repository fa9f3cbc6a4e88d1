package main

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"bytemomo/narwhal/internal/analyzer"
	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/usecase"

	"github.com/charmbracelet/lipgloss"
)

const maxListedFindings = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(14)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5B8DEF")).Padding(0, 1)

	severityColors = map[domain.Severity]lipgloss.Color{
		domain.SeverityCritical: lipgloss.Color("#FF4D4F"),
		domain.SeveritySerious:  lipgloss.Color("#FA8C16"),
		domain.SeverityModerate: lipgloss.Color("#FADB14"),
		domain.SeverityMinor:    lipgloss.Color("#8C8C8C"),
	}
	statusColors = map[domain.RunStatus]lipgloss.Color{
		domain.StatusSucceeded:      lipgloss.Color("#52C41A"),
		domain.StatusFailed:         lipgloss.Color("#FF4D4F"),
		domain.StatusTimedOut:       lipgloss.Color("#FA8C16"),
		domain.StatusNotImplemented: lipgloss.Color("#8C8C8C"),
	}
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderSummary(res *usecase.ScanResult) string {
	rep := res.Report
	var lines []string
	lines = append(lines,
		titleStyle.Render("Accessibility scan "+rep.RunID),
		row("URL", rep.URL),
		row("Findings", fmt.Sprintf("%d (from %d raw, %d unmapped)", rep.Summary.TotalFindings, rep.Summary.RawFindings, rep.Summary.Unmapped)),
		"",
	)

	var sev []string
	for _, s := range domain.Severities() {
		st := lipgloss.NewStyle().Foreground(severityColors[s])
		sev = append(sev, st.Render(fmt.Sprintf("%s %d", s, rep.Summary.BySeverity[s])))
	}
	lines = append(lines, row("Severity", strings.Join(sev, "  ")))

	for _, r := range rep.ToolRuns {
		st := lipgloss.NewStyle().Foreground(statusColors[r.Status])
		value := st.Render(string(r.Status)) + mutedStyle.Render(fmt.Sprintf("  %d findings, %s", rep.Summary.ByTool[r.Tool], r.Duration().Round(time.Millisecond)))
		if r.ErrorDetail != "" {
			value += "\n" + mutedStyle.Render(truncate(r.ErrorDetail, 100))
		}
		lines = append(lines, row(string(r.Tool), value))
	}

	cov := rep.Summary.CoverageByState
	lines = append(lines, row("Coverage", fmt.Sprintf("%d failed, %d passed, %d not covered",
		cov[domain.CoverageFailed], cov[domain.CoveragePassed], cov[domain.CoverageNotCovered])))

	if len(rep.Findings) > 0 {
		lines = append(lines, "", titleStyle.Render("Top findings"))
		for i, f := range rep.Findings {
			if i == maxListedFindings {
				lines = append(lines, mutedStyle.Render(fmt.Sprintf("... %d more in %s", len(rep.Findings)-i, res.Artifacts.Summary)))
				break
			}
			where := f.Selector
			if where == "" {
				where = "(page)"
			}
			st := lipgloss.NewStyle().Foreground(severityColors[f.Severity]).Width(9)
			lines = append(lines, fmt.Sprintf("%s %s %s %s",
				st.Render(string(f.Severity)),
				f.IssueType,
				mutedStyle.Render("["+strings.Join(f.WCAGCriteria, ", ")+"]"),
				truncate(where, 60)))
		}
	}

	lines = append(lines, "", row("Report", res.Artifacts.Report), row("Summary", res.Artifacts.Summary))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderAdapters lists each analyzer with its state and, for local command
// line tools, whether the binary is on PATH.
func renderAdapters(p *config.Profile) string {
	enabled := map[domain.ToolName]bool{}
	for _, t := range p.EnabledTools() {
		enabled[t] = true
	}

	lines := []string{titleStyle.Render("Analyzers")}
	for _, t := range domain.AllTools() {
		opts := p.AnalyzerOptions(t)
		state := mutedStyle.Render("disabled")
		if enabled[t] {
			state = lipgloss.NewStyle().Foreground(statusColors[domain.StatusSucceeded]).Render("enabled")
		}
		lines = append(lines, row(string(t), lipgloss.NewStyle().Width(10).Render(state)+fmt.Sprintf("%-11s %s", t.Category(), availability(t, opts))))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func availability(t domain.ToolName, opts analyzer.Options) string {
	if t == domain.ToolStructure {
		return "built in"
	}
	if opts.Runner == analyzer.RunnerDocker {
		return "docker image " + opts.Image
	}
	name := opts.Command
	if name == "" {
		name = string(t)
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return mutedStyle.Render(name + " not found on PATH")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
