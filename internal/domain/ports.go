package domain

import "context"

// Analyzer wraps exactly one external accessibility tool. Invoke must honour
// ctx cancellation and release any process or container it started before
// returning.
type Analyzer interface {
	Name() ToolName
	Invoke(ctx context.Context, url string) ([]byte, error)
}

// ResultRepo persists the raw payload of a tool run.
type ResultRepo interface {
	Save(run ToolRun) error
}

// ReportWriter persists a consolidated report and its derived artifacts.
type ReportWriter interface {
	Write(report *ConsolidatedReport) (Artifacts, error)
}

// RunSink is the per-run output location.
type RunSink interface {
	ResultRepo
	ReportWriter
}

// SinkFactory hands out the sink for a run id.
type SinkFactory interface {
	ForRun(runID string) (RunSink, error)
}

// ReportPublisher announces finished reports to interested parties.
type ReportPublisher interface {
	Publish(ctx context.Context, report *ConsolidatedReport, artifacts Artifacts) error
}
