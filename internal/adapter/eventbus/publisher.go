package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "narwhal.scan.completed"

const flushTimeout = 2 * time.Second

// ScanCompleted is the event published after a report has been written.
type ScanCompleted struct {
	RunID         string                               `json:"run_id"`
	URL           string                               `json:"url"`
	GeneratedAt   time.Time                            `json:"generated_at"`
	TotalFindings int                                  `json:"total_findings"`
	BySeverity    map[domain.Severity]int              `json:"by_severity"`
	ToolStatus    map[domain.ToolName]domain.RunStatus `json:"tool_status"`
	Coverage      map[domain.CoverageStatus]int        `json:"coverage"`
	Artifacts     domain.Artifacts                     `json:"artifacts"`
}

type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsConnected() bool
	Close()
}

// Publisher announces finished scans on a NATS subject.
type Publisher struct {
	conn    conn
	subject string
	log     *log.Entry
}

func NewPublisher(natsURL, subject string, l *log.Entry) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("narwhal"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", natsURL, err)
	}
	p := newPublisher(nc, subject, l)
	p.log.WithField("url", natsURL).Info("Connected to NATS")
	return p, nil
}

func newPublisher(c conn, subject string, l *log.Entry) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Publisher{conn: c, subject: subject, log: l.WithField("subject", subject)}
}

// Publish sends a ScanCompleted event for report.
func (p *Publisher) Publish(ctx context.Context, report *domain.ConsolidatedReport, arts domain.Artifacts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ScanCompleted{
		RunID:         report.RunID,
		URL:           report.URL,
		GeneratedAt:   report.GeneratedAt,
		TotalFindings: report.Summary.TotalFindings,
		BySeverity:    report.Summary.BySeverity,
		ToolStatus:    report.Summary.ToolStatus,
		Coverage:      report.Summary.CoverageByState,
		Artifacts:     arts,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	timeout := flushTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if timeout > 0 && p.conn.IsConnected() {
		if err := p.conn.FlushTimeout(timeout); err != nil {
			return fmt.Errorf("flush %s: %w", p.subject, err)
		}
	}
	p.log.WithField("run_id", report.RunID).Debug("Published scan event")
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.log.Debug("Disconnected from NATS")
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
