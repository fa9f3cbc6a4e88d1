package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
)

type fakeConn struct {
	subject   string
	data      []byte
	pubErr    error
	flushed   time.Duration
	connected bool
	closed    bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subject, f.data = subj, data
	return f.pubErr
}

func (f *fakeConn) FlushTimeout(d time.Duration) error {
	f.flushed = d
	return nil
}

func (f *fakeConn) IsConnected() bool { return f.connected }
func (f *fakeConn) Close()            { f.closed = true }

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func report() *domain.ConsolidatedReport {
	return &domain.ConsolidatedReport{
		RunID: "run-7",
		URL:   "https://example.com",
		Summary: domain.Summary{
			TotalFindings: 3,
			BySeverity:    map[domain.Severity]int{domain.SeveritySerious: 2, domain.SeverityMinor: 1},
			ToolStatus:    map[domain.ToolName]domain.RunStatus{domain.ToolAxe: domain.StatusSucceeded},
		},
	}
}

func TestPublishScanCompleted(t *testing.T) {
	fc := &fakeConn{connected: true}
	p := newPublisher(fc, "", quietLogger())

	arts := domain.Artifacts{Directory: "/tmp/reports/run-7", Report: "/tmp/reports/run-7/consolidated.json"}
	if err := p.Publish(context.Background(), report(), arts); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if fc.subject != DefaultSubject {
		t.Fatalf("subject = %q", fc.subject)
	}
	if fc.flushed != flushTimeout {
		t.Fatalf("flush timeout = %v", fc.flushed)
	}

	var ev ScanCompleted
	if err := json.Unmarshal(fc.data, &ev); err != nil {
		t.Fatalf("event is not JSON: %v", err)
	}
	if ev.RunID != "run-7" || ev.TotalFindings != 3 || ev.BySeverity[domain.SeveritySerious] != 2 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Artifacts.Report != arts.Report {
		t.Fatalf("artifacts = %+v", ev.Artifacts)
	}

	p.Close()
	if !fc.closed {
		t.Fatal("connection not closed")
	}
}

func TestPublishErrors(t *testing.T) {
	fc := &fakeConn{pubErr: errors.New("nats: connection closed")}
	p := newPublisher(fc, "a11y.done", quietLogger())
	if err := p.Publish(context.Background(), report(), domain.Artifacts{}); err == nil {
		t.Fatal("expected publish error")
	}
	if fc.subject != "a11y.done" {
		t.Fatalf("subject = %q", fc.subject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc = &fakeConn{}
	p = newPublisher(fc, "", quietLogger())
	if err := p.Publish(ctx, report(), domain.Artifacts{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if fc.data != nil {
		t.Fatal("cancelled publish must not send")
	}
}

func TestPublishSkipsFlushWhileDisconnected(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "", quietLogger())
	if err := p.Publish(context.Background(), report(), domain.Artifacts{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if fc.flushed != 0 {
		t.Fatalf("flushed while disconnected")
	}
	if p.IsConnected() {
		t.Fatal("IsConnected should follow the connection")
	}
}
