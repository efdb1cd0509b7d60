package nats

import (
	"context"
	"fmt"

	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/events"
)

// EventPublisher is satisfied by *Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TurnSink publishes every turn record as a TypeTurnRecorded event.
type TurnSink struct {
	publisher EventPublisher
}

func NewTurnSink(publisher EventPublisher) *TurnSink {
	return &TurnSink{publisher: publisher}
}

func (s *TurnSink) Emit(ctx context.Context, records []consultation.TurnRecord) error {
	for _, r := range records {
		e := events.New(events.TypeTurnRecorded, r)
		e.OccurredAt = r.Timestamp
		if err := s.publisher.Publish(ctx, e); err != nil {
			return fmt.Errorf("turn %d of session %s: %w", r.Seq, r.SessionID, err)
		}
	}
	return nil
}

// TurnHandler adapts a record callback into an EventHandler, skipping events
// of other types.
func TurnHandler(fn func(ctx context.Context, record consultation.TurnRecord) error) EventHandler {
	return func(ctx context.Context, event events.BaseEvent) error {
		if event.EventType() != events.TypeTurnRecorded {
			return nil
		}
		var record consultation.TurnRecord
		if err := event.Decode(&record); err != nil {
			return err
		}
		return fn(ctx, record)
	}
}
