package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucsky/cuid"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "roadrisk.alerts"

// Alert is published for predictions at the highest risk level.
type Alert struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SegmentKey string    `json:"segment_key"`
	UF         string    `json:"uf"`
	BR         int       `json:"br"`
	KM         float64   `json:"km"`
	RiskScore  float64   `json:"risk_score"`
	RiskLevel  string    `json:"risk_level"`
	Source     string    `json:"source"`
}

// NewAlert stamps an alert with an id and the current time.
func NewAlert(a Alert) *Alert {
	a.ID = cuid.New()
	a.Timestamp = time.Now().UTC()
	return &a
}

type Publisher interface {
	Publish(ctx context.Context, a *Alert) error
	Close() error
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Publish(context.Context, *Alert) error { return nil }
func (Nop) Close() error                          { return nil }

type conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

// NATSPublisher publishes alerts as JSON to a NATS subject.
type NATSPublisher struct {
	nc      conn
	subject string
}

// New connects to url, or returns Nop when url is empty.
func New(url, subject string) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	nc, err := nats.Connect(url, nats.Name("roadrisk"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(nc conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, a *Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	if err := p.nc.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending alerts and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.nc.Flush()
	p.nc.Close()
	if err != nil {
		return fmt.Errorf("flushing nats: %w", err)
	}
	return nil
}
