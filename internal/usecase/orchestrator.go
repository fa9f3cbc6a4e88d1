package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Orchestrator runs a set of analyzers concurrently against one URL. Every
// analyzer gets its own deadline; a slow, failing or panicking analyzer never
// affects its siblings.
type Orchestrator struct {
	Log *log.Entry
	// Store receives the run of every succeeded analyzer as soon as it
	// finishes. Optional.
	Store domain.ResultRepo
	Now   func() time.Time
}

type invokeResult struct {
	payload []byte
	err     error
}

// Run blocks until every analyzer has reached a terminal state and returns
// one ToolRun per analyzer, in the order the analyzers were given.
func (o Orchestrator) Run(ctx context.Context, url string, analyzers []domain.Analyzer, timeout time.Duration) []domain.ToolRun {
	l := o.logger().WithField("url", url)
	l.WithFields(log.Fields{
		"analyzers": len(analyzers),
		"timeout":   timeout.String(),
	}).Info("Starting scan")

	type indexed struct {
		i   int
		run domain.ToolRun
	}
	out := make(chan indexed, len(analyzers))

	for i, a := range analyzers {
		i, a := i, a
		go func() {
			run := o.runOne(ctx, l, url, a, timeout)
			if run.Succeeded() && o.Store != nil {
				if err := o.Store.Save(run); err != nil {
					l.WithFields(log.Fields{
						"tool":  run.Tool,
						"error": err,
					}).Error("Failed to save raw result")
				}
			}
			out <- indexed{i, run}
		}()
	}

	runs := make([]domain.ToolRun, len(analyzers))
	for range analyzers {
		r := <-out
		runs[r.i] = r.run
	}

	l.Info("Scan finished")
	return runs
}

func (o Orchestrator) runOne(ctx context.Context, l *log.Entry, url string, a domain.Analyzer, timeout time.Duration) domain.ToolRun {
	tool := a.Name()
	l = l.WithField("tool", tool)
	run := domain.ToolRun{Tool: tool, StartedAt: o.now()}

	cctx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.WithField("stack", string(debug.Stack())).Error("Analyzer panicked")
				done <- invokeResult{err: fmt.Errorf("analyzer panicked: %v", r)}
			}
		}()
		payload, err := a.Invoke(cctx, url)
		done <- invokeResult{payload: payload, err: err}
	}()

	res := awaitInvoke(cctx, done)
	run.FinishedAt = o.now()
	if run.FinishedAt.Before(run.StartedAt) {
		run.FinishedAt = run.StartedAt
	}

	switch {
	case res.err == nil:
		run.Status = domain.StatusSucceeded
		run.RawPayload = res.payload
	case errors.Is(res.err, domain.ErrUnavailable):
		run.Status = domain.StatusNotImplemented
		run.ErrorDetail = res.err.Error()
	case ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded):
		run.Status = domain.StatusTimedOut
		run.ErrorDetail = (&domain.AdapterTimeout{Tool: tool, Timeout: timeout}).Error()
	case ctx.Err() != nil:
		run.Status = domain.StatusFailed
		run.ErrorDetail = fmt.Sprintf("run cancelled: %v", ctx.Err())
	default:
		run.Status = domain.StatusFailed
		run.ErrorDetail = res.err.Error()
	}

	entry := l.WithFields(log.Fields{
		"status":   run.Status,
		"duration": run.Duration().String(),
	})
	switch run.Status {
	case domain.StatusSucceeded:
		entry.WithField("bytes", len(run.RawPayload)).Info("Analyzer finished")
	case domain.StatusNotImplemented:
		entry.WithField("reason", run.ErrorDetail).Warn("Analyzer not available")
	default:
		entry.WithField("error", run.ErrorDetail).Error("Analyzer failed")
	}
	return run
}

// awaitInvoke waits for the adapter or its deadline. A result that is
// already available wins over an expired deadline.
func awaitInvoke(ctx context.Context, done <-chan invokeResult) invokeResult {
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		select {
		case res := <-done:
			return res
		default:
			return invokeResult{err: ctx.Err()}
		}
	}
}

func (o Orchestrator) logger() *log.Entry {
	if o.Log != nil {
		return o.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func (o Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
