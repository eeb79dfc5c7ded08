package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

const currentEnvelopeVersion = 1

// ActorRef identifies who produced the event. Sweeps emit without an actor.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// AggregateRef repeats the row's aggregate so subscribers can key on it
// without reading message attributes.
type AggregateRef struct {
	Type enums.OutboxAggregateType `json:"type"`
	ID   uuid.UUID                 `json:"id"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive. Fields are only ever added.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Aggregate  *AggregateRef   `json:"aggregate,omitempty"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DomainEvent is what services hand to Emit.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// NewEnvelope validates the event and wraps its data with a fresh event id.
func NewEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return PayloadEnvelope{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return PayloadEnvelope{}, fmt.Errorf("%s event has no aggregate id", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		EventType:  string(event.EventType),
		OccurredAt: event.OccurredAt.UTC(),
		Aggregate:  &AggregateRef{Type: event.AggregateType, ID: event.AggregateID},
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = currentEnvelopeVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}
