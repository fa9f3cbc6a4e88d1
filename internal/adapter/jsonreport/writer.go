package jsonreport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"bytemomo/narwhal/internal/domain"
)

// File names inside a run directory.
const (
	RawDir       = "raw"
	ReportFile   = "consolidated.json"
	SummaryFile  = "summary.md"
	CoverageFile = "coverage.csv"
)

// Writer lays out run artifacts as <OutDir>/<run id>/. Every artifact is
// written once; rewriting it with identical content is a no-op and rewriting
// it with different content fails with domain.ErrArtifactExists.
type Writer struct {
	OutDir string // e.g., ./reports
}

func New(out string) *Writer { return &Writer{OutDir: out} }

// ForRun creates the run directory and returns its sink.
func (w *Writer) ForRun(runID string) (domain.RunSink, error) {
	if runID == "" || safeName(runID) != runID {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir := filepath.Join(w.OutDir, runID)
	if err := os.MkdirAll(filepath.Join(dir, RawDir), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return &RunDir{Dir: dir, raw: map[domain.ToolName]string{}}, nil
}

// RunDir is the sink of one run. Save may be called concurrently.
type RunDir struct {
	Dir string

	mu  sync.Mutex
	raw map[domain.ToolName]string
}

// Save writes the raw payload of a succeeded run to raw/<tool>.json. Runs
// without a payload are skipped.
func (d *RunDir) Save(run domain.ToolRun) error {
	if !run.Succeeded() || len(run.RawPayload) == 0 {
		return nil
	}
	file := filepath.Join(d.Dir, RawDir, safeName(string(run.Tool))+".json")
	if err := writeAtomic(file, run.RawPayload); err != nil {
		return fmt.Errorf("save %s raw result: %w", run.Tool, err)
	}
	d.mu.Lock()
	d.raw[run.Tool] = file
	d.mu.Unlock()
	return nil
}

// Write persists the consolidated report, the Markdown summary and the
// coverage table. Succeeded runs whose payload was saved get their RawFile
// set before the report is encoded.
func (d *RunDir) Write(rep *domain.ConsolidatedReport) (domain.Artifacts, error) {
	if rep == nil {
		return domain.Artifacts{}, errors.New("nil report")
	}
	arts := domain.Artifacts{
		Directory: d.Dir,
		Report:    filepath.Join(d.Dir, ReportFile),
		Summary:   filepath.Join(d.Dir, SummaryFile),
		Coverage:  filepath.Join(d.Dir, CoverageFile),
	}

	d.mu.Lock()
	for i, run := range rep.ToolRuns {
		if _, ok := d.raw[run.Tool]; ok && run.Succeeded() {
			rep.ToolRuns[i].RawFile = path.Join(RawDir, safeName(string(run.Tool))+".json")
		}
	}
	d.mu.Unlock()

	report, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("encode report: %w", err)
	}
	if err := writeAtomic(arts.Report, append(report, '\n')); err != nil {
		return domain.Artifacts{}, fmt.Errorf("write report: %w", err)
	}

	summary, err := renderSummary(rep)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("render summary: %w", err)
	}
	if err := writeAtomic(arts.Summary, summary); err != nil {
		return domain.Artifacts{}, fmt.Errorf("write summary: %w", err)
	}

	coverage, err := renderCoverage(rep)
	if err != nil {
		return domain.Artifacts{}, fmt.Errorf("render coverage: %w", err)
	}
	if err := writeAtomic(arts.Coverage, coverage); err != nil {
		return domain.Artifacts{}, fmt.Errorf("write coverage: %w", err)
	}

	d.mu.Lock()
	if len(d.raw) > 0 {
		arts.Raw = make(map[domain.ToolName]string, len(d.raw))
		for k, v := range d.raw {
			arts.Raw[k] = v
		}
	}
	d.mu.Unlock()
	return arts, nil
}

// writeAtomic writes data to a temp file in the target directory and links
// it into place, so readers never see a partial file and an existing
// artifact is never replaced.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	err = os.Link(tmp.Name(), path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return err
	}
	existing, rerr := os.ReadFile(path)
	if rerr != nil {
		return rerr
	}
	if bytes.Equal(existing, data) {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrArtifactExists, path)
}

func safeName(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	out := result.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}
