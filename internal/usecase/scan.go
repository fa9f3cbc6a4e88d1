package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/pipeline/consolidator"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidURL is returned for scan targets that are not absolute http(s)
// URLs.
var ErrInvalidURL = errors.New("invalid target url")

// ScanRequest selects the page and, optionally, a subset of tools.
type ScanRequest struct {
	URL   string            `json:"url"`
	Tools []domain.ToolName `json:"tools,omitempty"`
}

// ScanResult is what a finished scan produced.
type ScanResult struct {
	Report    *domain.ConsolidatedReport `json:"report"`
	Artifacts domain.Artifacts           `json:"artifacts"`
}

// ScanUC runs the whole pipeline for one URL: analyzers, consolidation,
// persistence and the completion event.
type ScanUC struct {
	Log          *log.Entry
	Orchestrator Orchestrator
	Engine       consolidator.Consolidator
	Sinks        domain.SinkFactory
	// Publisher is optional; its failures are logged and never fail a scan.
	Publisher domain.ReportPublisher
	// Tools are scanned when a request names none.
	Tools   []domain.ToolName
	Build   func(tool domain.ToolName) (domain.Analyzer, error)
	Timeout time.Duration
	Now     func() time.Time
}

func (s ScanUC) Execute(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	target, err := ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}
	tools := req.Tools
	if len(tools) == 0 {
		tools = s.Tools
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("no analyzers selected")
	}

	analyzers := make([]domain.Analyzer, 0, len(tools))
	seen := map[domain.ToolName]bool{}
	for _, t := range tools {
		if _, err := domain.ParseToolName(string(t)); err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		a, err := s.Build(t)
		if err != nil {
			return nil, fmt.Errorf("build %s analyzer: %w", t, err)
		}
		analyzers = append(analyzers, a)
	}

	runID := NewRunID(s.now())
	l := s.logger().WithFields(log.Fields{"run_id": runID, "url": target})

	sink, err := s.Sinks.ForRun(runID)
	if err != nil {
		return nil, fmt.Errorf("open run output: %w", err)
	}

	orch := s.Orchestrator
	orch.Log = l
	orch.Store = sink
	if orch.Now == nil {
		orch.Now = s.Now
	}
	runs := orch.Run(ctx, target, analyzers, s.Timeout)

	report, err := s.Engine.Consolidate(runs)
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	report.RunID = runID
	report.URL = target

	arts, err := sink.Write(report)
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	l.WithFields(log.Fields{
		"findings": report.Summary.TotalFindings,
		"raw":      report.Summary.RawFindings,
		"report":   arts.Report,
	}).Info("Report written")

	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, report, arts); err != nil {
			l.WithError(err).Warn("Failed to publish scan event")
		}
	}
	return &ScanResult{Report: report, Artifacts: arts}, nil
}

// ValidateURL accepts absolute http and https URLs with a host and returns
// the trimmed form.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https: %q", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host: %q", ErrInvalidURL, raw)
	}
	return raw, nil
}

// NewRunID is a sortable timestamp plus a random suffix, safe as a
// directory name.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s ScanUC) logger() *log.Entry {
	if s.Log != nil {
		return s.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func (s ScanUC) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
