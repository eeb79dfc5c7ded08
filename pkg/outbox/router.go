package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// ResolvedEvent is an outbox row with its destination topic and decoded envelope.
// Ordered events carry the aggregate id as their Pub/Sub ordering key.
type ResolvedEvent struct {
	Topic    string
	Ordered  bool
	Envelope PayloadEnvelope
}

// Router maps event types to Pub/Sub topics.
type Router struct {
	topics  map[enums.OutboxEventType]string
	ordered map[string]bool
}

// NewRouter builds the routing table from the configured topic names.
func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	if cfg.EscrowTopic == "" {
		return nil, fmt.Errorf("escrow topic is required")
	}
	return &Router{topics: map[enums.OutboxEventType]string{
		enums.EventNotificationRequested:  cfg.NotificationTopic,
		enums.EventTransactionStateChange: cfg.EscrowTopic,
		enums.EventFundsReleased:          cfg.EscrowTopic,
		enums.EventFundsRefunded:          cfg.EscrowTopic,
		enums.EventPaymentVerified:        cfg.EscrowTopic,
		enums.EventPaymentRejected:        cfg.EscrowTopic,
	}, ordered: map[string]bool{cfg.EscrowTopic: true}}, nil
}

// Resolve decodes the stored envelope and picks the topic. Unknown event
// types and undecodable payloads are non-retryable.
func (r *Router) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	topic, ok := r.topics[event.EventType]
	if !ok {
		return nil, NonRetryableError{Err: fmt.Errorf("no topic for event type %s", event.EventType)}
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if envelope.EventID == "" {
		return nil, NonRetryableError{Err: fmt.Errorf("envelope missing event id")}
	}
	return &ResolvedEvent{Topic: topic, Ordered: r.ordered[topic], Envelope: envelope}, nil
}
