package jsonreport

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"
)

func sampleReport() *domain.ConsolidatedReport {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.ConsolidatedReport{
		RunID: "20260301T100000Z-ab12cd34",
		URL:   "https://example.com",
		Findings: []domain.Finding{{
			ID:           "0011223344556677",
			SourceTools:  []domain.ToolName{domain.ToolAxe, domain.ToolStructure},
			IssueType:    "focus-not-visible",
			Message:      "Focus outline is removed | hidden",
			Severity:     domain.SeveritySerious,
			WCAGCriteria: []string{"2.4.7"},
			Selector:     "#nav-skip-link",
			Occurrences:  2,
		}},
		ToolRuns: []domain.ToolRun{
			{Tool: domain.ToolAxe, Status: domain.StatusSucceeded, StartedAt: start, FinishedAt: start.Add(2 * time.Second)},
			{Tool: domain.ToolPa11y, Status: domain.StatusNotImplemented, ErrorDetail: "pa11y: not installed", StartedAt: start, FinishedAt: start},
		},
		Coverage: map[string]domain.CoverageEntry{
			"2.4.7":  {Criterion: "2.4.7", Title: "Focus Visible", Level: domain.LevelAA, Tested: true, FailedCount: 2, Status: domain.CoverageFailed, Tools: []domain.ToolName{domain.ToolAxe, domain.ToolStructure}},
			"2.4.10": {Criterion: "2.4.10", Title: "Section Headings", Level: domain.LevelAAA, NotCovered: true, Status: domain.CoverageNotCovered},
			"1.1.1":  {Criterion: "1.1.1", Title: "Non-text Content", Level: domain.LevelA, Tested: true, PassedCount: 1, Status: domain.CoveragePassed, Tools: []domain.ToolName{domain.ToolAxe}},
		},
		MappingGaps: []domain.MappingGap{{Tool: domain.ToolAxe, Code: "landmark-unique", Occurrences: 1}},
		Summary: domain.Summary{
			TotalFindings:   1,
			RawFindings:     2,
			BySeverity:      map[domain.Severity]int{domain.SeveritySerious: 1},
			ByTool:          map[domain.ToolName]int{domain.ToolAxe: 1, domain.ToolStructure: 1},
			CoverageByState: map[domain.CoverageStatus]int{domain.CoverageFailed: 1, domain.CoveragePassed: 1, domain.CoverageNotCovered: 1},
		},
		GeneratedAt: start.Add(5 * time.Second),
	}
}

func TestWriterLayout(t *testing.T) {
	w := New(t.TempDir())
	sink, err := w.ForRun("run-1")
	if err != nil {
		t.Fatalf("ForRun: %v", err)
	}

	if err := sink.Save(domain.ToolRun{Tool: domain.ToolAxe, Status: domain.StatusSucceeded, RawPayload: json.RawMessage(`[{"violations":[]}]`)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Non-succeeded runs carry nothing to persist.
	if err := sink.Save(domain.ToolRun{Tool: domain.ToolPa11y, Status: domain.StatusFailed}); err != nil {
		t.Fatalf("Save failed run: %v", err)
	}

	arts, err := sink.Write(sampleReport())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if arts.Directory != filepath.Join(w.OutDir, "run-1") {
		t.Fatalf("directory = %s", arts.Directory)
	}
	if len(arts.Raw) != 1 || arts.Raw[domain.ToolAxe] != filepath.Join(arts.Directory, "raw", "axe.json") {
		t.Fatalf("raw artifacts = %v", arts.Raw)
	}
	if _, err := os.Stat(filepath.Join(arts.Directory, "raw", "pa11y.json")); !os.IsNotExist(err) {
		t.Fatalf("pa11y raw file should not exist: %v", err)
	}

	data, err := os.ReadFile(arts.Report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var back domain.ConsolidatedReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if back.RunID != sampleReport().RunID {
		t.Fatalf("run id = %s", back.RunID)
	}
	if len(back.Findings) != 1 || back.Findings[0].Selector != "#nav-skip-link" {
		t.Fatalf("findings = %+v", back.Findings)
	}
	raw := map[domain.ToolName]string{}
	for _, r := range back.ToolRuns {
		raw[r.Tool] = r.RawFile
	}
	if raw[domain.ToolAxe] != "raw/axe.json" {
		t.Fatalf("axe raw_file = %q", raw[domain.ToolAxe])
	}
	if raw[domain.ToolPa11y] != "" {
		t.Fatalf("pa11y raw_file = %q, want none", raw[domain.ToolPa11y])
	}
	if _, err := os.Stat(filepath.Join(arts.Directory, filepath.FromSlash(raw[domain.ToolAxe]))); err != nil {
		t.Fatalf("raw_file does not resolve: %v", err)
	}

	entries, err := os.ReadDir(arts.Directory)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSummaryMarkdown(t *testing.T) {
	sink, err := New(t.TempDir()).ForRun("run-md")
	if err != nil {
		t.Fatal(err)
	}
	arts, err := sink.Write(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(arts.Summary)
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	for _, want := range []string{
		"- URL: https://example.com",
		"- Generated: 2026-03-01T10:00:05Z",
		"consolidated from 2 raw (0 unmapped)",
		"| critical | 0 |",
		"| serious | 1 |",
		"| axe | succeeded | 1 | 2s |  |",
		"| pa11y | not_implemented | 0 | 0s | pa11y: not installed |",
		"| not_covered | 1 |",
		"| serious | focus-not-visible | 2.4.7 | `#nav-skip-link` | axe, structure |",
		"| axe | landmark-unique | 1 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("summary missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Warnings") {
		t.Errorf("summary should omit empty warnings section")
	}
}

func TestCoverageCSV(t *testing.T) {
	sink, err := New(t.TempDir()).ForRun("run-csv")
	if err != nil {
		t.Fatal(err)
	}
	arts, err := sink.Write(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(arts.Coverage)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("coverage is not CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	var order []string
	for _, r := range rows[1:] {
		order = append(order, r[0])
	}
	if strings.Join(order, ",") != "1.1.1,2.4.7,2.4.10" {
		t.Fatalf("criterion order = %v", order)
	}
	if got := rows[2]; got[3] != "failed" || got[6] != "2" || got[8] != "axe;structure" {
		t.Fatalf("2.4.7 row = %v", got)
	}
}

func TestArtifactsAreWriteOnce(t *testing.T) {
	sink, err := New(t.TempDir()).ForRun("run-once")
	if err != nil {
		t.Fatal(err)
	}
	rep := sampleReport()
	if _, err := sink.Write(rep); err != nil {
		t.Fatal(err)
	}
	// Same content again is fine.
	if _, err := sink.Write(rep); err != nil {
		t.Fatalf("identical rewrite: %v", err)
	}
	rep.Findings[0].Severity = domain.SeverityCritical
	if _, err := sink.Write(rep); !errors.Is(err, domain.ErrArtifactExists) {
		t.Fatalf("err = %v, want ErrArtifactExists", err)
	}

	run := domain.ToolRun{Tool: domain.ToolAxe, Status: domain.StatusSucceeded, RawPayload: json.RawMessage(`[]`)}
	if err := sink.Save(run); err != nil {
		t.Fatal(err)
	}
	run.RawPayload = json.RawMessage(`[{}]`)
	if err := sink.Save(run); !errors.Is(err, domain.ErrArtifactExists) {
		t.Fatalf("err = %v, want ErrArtifactExists", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	sink, err := New(t.TempDir()).ForRun("run-par")
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for _, tool := range domain.AllTools() {
		wg.Add(1)
		go func(tool domain.ToolName) {
			defer wg.Done()
			run := domain.ToolRun{Tool: tool, Status: domain.StatusSucceeded, RawPayload: json.RawMessage(`{"tool":"` + string(tool) + `"}`)}
			if err := sink.Save(run); err != nil {
				t.Errorf("Save %s: %v", tool, err)
			}
		}(tool)
	}
	wg.Wait()

	arts, err := sink.Write(sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(arts.Raw) != len(domain.AllTools()) {
		t.Fatalf("raw = %v", arts.Raw)
	}
	for tool, path := range arts.Raw {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), string(tool)) {
			t.Fatalf("%s payload = %s", tool, data)
		}
	}
}

func TestForRunRejectsUnsafeIDs(t *testing.T) {
	w := New(t.TempDir())
	for _, id := range []string{"", "..", "a/b", "../escape"} {
		if _, err := w.ForRun(id); err == nil {
			t.Errorf("ForRun(%q) should fail", id)
		}
	}
}
