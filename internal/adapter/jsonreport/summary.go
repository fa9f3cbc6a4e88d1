package jsonreport

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"bytemomo/narwhal/internal/domain"
)

var summaryTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"join": strings.Join,
	"cell": cell,
	"dur":  func(d time.Duration) string { return d.Round(time.Millisecond).String() },
}).Parse(`# Accessibility Report

- URL: {{.URL}}
- Run: {{.RunID}}
- Generated: {{.Generated}}
- Findings: {{.Summary.TotalFindings}} consolidated from {{.Summary.RawFindings}} raw ({{.Summary.Unmapped}} unmapped)

## Findings by Severity

| Severity | Count |
|----------|-------|
{{range .Severities}}| {{.Name}} | {{.Count}} |
{{end}}
## Findings by Tool

| Tool | Status | Findings | Duration | Error |
|------|--------|----------|----------|-------|
{{range .Tools}}| {{.Name}} | {{.Status}} | {{.Count}} | {{dur .Duration}} | {{cell .Error}} |
{{end}}
## Coverage

| Status | Criteria |
|--------|----------|
{{range .Coverage}}| {{.Name}} | {{.Count}} |
{{end}}{{if .Findings}}
## Findings

| Severity | Issue | Criteria | Selector | Tools |
|----------|-------|----------|----------|-------|
{{range .Findings}}| {{.Severity}} | {{cell .IssueType}} | {{join .WCAGCriteria ", "}} | {{if .Selector}}` + "`{{cell .Selector}}`" + `{{else}}(page){{end}} | {{range $i, $t := .SourceTools}}{{if $i}}, {{end}}{{$t}}{{end}} |
{{end}}{{end}}{{if .MappingGaps}}
## Mapping Gaps

| Tool | Code | Occurrences |
|------|------|-------------|
{{range .MappingGaps}}| {{.Tool}} | {{cell .Code}} | {{.Occurrences}} |
{{end}}{{end}}{{if .Warnings}}
## Warnings

{{range .Warnings}}- {{.}}
{{end}}{{end}}`))

type countRow struct {
	Name  string
	Count int
}

type toolRow struct {
	Name     domain.ToolName
	Status   domain.RunStatus
	Count    int
	Duration time.Duration
	Error    string
}

type summaryView struct {
	*domain.ConsolidatedReport
	Generated  string
	Severities []countRow
	Tools      []toolRow
	Coverage   []countRow
}

func renderSummary(rep *domain.ConsolidatedReport) ([]byte, error) {
	v := summaryView{
		ConsolidatedReport: rep,
		Generated:          rep.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for _, s := range domain.Severities() {
		v.Severities = append(v.Severities, countRow{Name: string(s), Count: rep.Summary.BySeverity[s]})
	}
	for _, r := range rep.ToolRuns {
		v.Tools = append(v.Tools, toolRow{
			Name:     r.Tool,
			Status:   r.Status,
			Count:    rep.Summary.ByTool[r.Tool],
			Duration: r.Duration(),
			Error:    r.ErrorDetail,
		})
	}
	for _, s := range []domain.CoverageStatus{domain.CoverageFailed, domain.CoveragePassed, domain.CoverageNotCovered} {
		v.Coverage = append(v.Coverage, countRow{Name: string(s), Count: rep.Summary.CoverageByState[s]})
	}

	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderCoverage writes one row per criterion in reference order.
func renderCoverage(rep *domain.ConsolidatedReport) ([]byte, error) {
	ids := make([]string, 0, len(rep.Coverage))
	for id := range rep.Coverage {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return domain.CompareCriteria(ids[i], ids[j]) < 0 })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"criterion", "title", "level", "status", "tested", "passed_count", "failed_count", "not_covered", "tools"})
	for _, id := range ids {
		e := rep.Coverage[id]
		tools := make([]string, len(e.Tools))
		for i, t := range e.Tools {
			tools[i] = string(t)
		}
		_ = w.Write([]string{
			e.Criterion,
			e.Title,
			string(e.Level),
			string(e.Status),
			strconv.FormatBool(e.Tested),
			strconv.Itoa(e.PassedCount),
			strconv.Itoa(e.FailedCount),
			strconv.FormatBool(e.NotCovered),
			strings.Join(tools, ";"),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// cell keeps free text from breaking a Markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
