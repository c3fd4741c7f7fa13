// Package audit publishes append-only records of query processing to an
// external sink for compliance review.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event kinds, in the order a query produces them: one classification,
// zero or more validations, an optional escalation, one outcome.
const (
	KindClassification = "classification"
	KindValidation     = "validation"
	KindEscalation     = "escalation"
	KindOutcome        = "outcome"
)

// Event is one audit record. Events are emitted in processing order per
// query and never amended.
type Event struct {
	Kind      string      `json:"kind"`
	QueryID   string      `json:"query_id"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// NATSSink publishes events to NATS subjects <prefix>.<kind>.
type NATSSink struct {
	conn    *nats.Conn
	prefix  string
	ownConn bool
}

// NewNATSSink connects to the NATS server at url. Subject prefix defaults
// to "pensiond.audit".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	if prefix == "" {
		prefix = "pensiond.audit"
	}
	conn, err := nats.Connect(url,
		nats.Name("pensiond-audit"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSSink{conn: conn, prefix: prefix, ownConn: true}, nil
}

// NewNATSSinkWithConn wraps an existing connection. The connection is not
// closed by Close; its owner keeps that responsibility.
func NewNATSSinkWithConn(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "pensiond.audit"
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Emit publishes one event.
func (s *NATSSink) Emit(_ context.Context, ev Event) error {
	if ev.Kind == "" {
		return fmt.Errorf("audit event missing kind")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	if err := s.conn.Publish(s.prefix+"."+ev.Kind, data); err != nil {
		return fmt.Errorf("publishing audit event: %w", err)
	}
	return nil
}

// Close flushes and, when this sink owns the connection, closes it.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Flush()
	if s.ownConn {
		s.conn.Close()
	}
	return err
}

// NopSink discards all events. Used when auditing is disabled.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }
func (NopSink) Close() error                      { return nil }

var (
	_ Sink = (*NATSSink)(nil)
	_ Sink = NopSink{}
)
