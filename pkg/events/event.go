package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published on the bus. The type doubles as the NATS subject.
const (
	TypeTurnRecorded     = "consultation.turn.recorded"
	TypeSessionEnded     = "consultation.session.ended"
	TypeDocumentIngested = "consultation.document.ingested"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g. "consultation.turn.recorded").
	EventType() string

	// Payload returns the data associated with the event. It must be JSON encodable.
	Payload() interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the concrete event used by publishers and rebuilt by subscribers.
// After decoding, Data holds the raw JSON payload.
type BaseEvent struct {
	Type       string
	Data       interface{}
	OccurredAt time.Time
}

func New(eventType string, data interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Decode unmarshals the payload of a decoded event into out.
func (e BaseEvent) Decode(out interface{}) error {
	raw, ok := e.Data.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("failed to re-encode payload: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// envelope is the wire format; type and time travel with the payload.
type envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return json.Marshal(envelope{Type: e.EventType(), OccurredAt: e.Timestamp(), Data: data})
}

func Unmarshal(data []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return BaseEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if env.Type == "" {
		return BaseEvent{}, fmt.Errorf("event has no type")
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
