package consultation

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/transcript"
)

// TurnRecord is the wire shape of a stored turn.
type TurnRecord struct {
	SessionID      string    `json:"sessionId"`
	Round          int       `json:"round"`
	Seq            int64     `json:"seq"`
	Speaker        string    `json:"speaker"`
	Name           string    `json:"name"`
	Text           string    `json:"text"`
	Target         string    `json:"target,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PolicyDecision string    `json:"policyDecision"`
	Reason         string    `json:"reason,omitempty"`
	Fallback       bool      `json:"fallback,omitempty"`
	Rebuttal       bool      `json:"rebuttal,omitempty"`
	Citations      []uint64  `json:"citations,omitempty"`
}

func NewTurnRecord(sessionID string, t transcript.Turn) TurnRecord {
	return TurnRecord{
		SessionID:      sessionID,
		Round:          t.Round,
		Seq:            t.Seq,
		Speaker:        string(t.Speaker),
		Name:           t.Label(),
		Text:           t.Rendered,
		Target:         t.Target,
		Timestamp:      t.Timestamp,
		PolicyDecision: t.Decision,
		Reason:         t.Reason,
		Fallback:       t.Fallback,
		Rebuttal:       t.Rebuttal,
		Citations:      t.Citations,
	}
}

// Sink receives the turns of each round once the round is over. An error
// is logged by the orchestrator and never fails the round.
type Sink interface {
	Emit(ctx context.Context, records []TurnRecord) error
}

type SinkFunc func(ctx context.Context, records []TurnRecord) error

func (f SinkFunc) Emit(ctx context.Context, records []TurnRecord) error {
	return f(ctx, records)
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []TurnRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Emit(_ context.Context, records []TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *MemorySink) Records() []TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TurnRecord(nil), m.records...)
}

// MultiSink fans records out to every sink; one failing sink does not stop
// the others.
type MultiSink []Sink

func (ms MultiSink) Emit(ctx context.Context, records []TurnRecord) error {
	var errs []error
	for _, s := range ms {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each record as a structured log entry, typically to the
// isolated transcript log.
type LogSink struct {
	logger logger.ILogger
}

func NewLogSink(log logger.ILogger) *LogSink {
	return &LogSink{logger: log}
}

func (l *LogSink) Emit(_ context.Context, records []TurnRecord) error {
	for _, r := range records {
		l.logger.Info("Transcript", r.Name, map[string]interface{}{
			"session_id": r.SessionID,
			"round":      r.Round,
			"seq":        r.Seq,
			"speaker":    r.Speaker,
			"text":       r.Text,
			"target":     r.Target,
			"decision":   r.PolicyDecision,
			"fallback":   r.Fallback,
			"rebuttal":   r.Rebuttal,
			"citations":  r.Citations,
		})
	}
	return nil
}
