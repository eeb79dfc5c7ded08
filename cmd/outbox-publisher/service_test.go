package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		newEvent(t, enums.EventFundsReleased, "event-one"),
		newEvent(t, enums.EventNotificationRequested, "event-two"),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	assert.Empty(t, repo.terminal)
	assert.Equal(t, []string{"escrow-events", "escrow-notifications"}, pub.topics)
}

func TestServiceProcessBatchSetsAttributes(t *testing.T) {
	event := newEvent(t, enums.EventPaymentVerified, "evt-attrs")
	event.AggregateType = enums.AggregatePayment
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	attrs := pub.messages[0].Attributes
	assert.Equal(t, "evt-attrs", attrs["event_id"])
	assert.Equal(t, "payment_verified", attrs["event_type"])
	assert.Equal(t, "payment", attrs["aggregate_type"])
	assert.Equal(t, event.AggregateID.String(), attrs["aggregate_id"])
}

func TestServiceProcessBatchMarksTerminalOnUndecodablePayload(t *testing.T) {
	event := newEvent(t, enums.EventFundsRefunded, "ignored")
	event.Payload = json.RawMessage(`not-json`)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Empty(t, repo.published)
	assert.Empty(t, pub.messages)
}

func TestServiceProcessBatchMarksTerminalWhenPublisherMissing(t *testing.T) {
	event := newEvent(t, enums.EventTransactionStateChange, "no-pub")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, nil)
	service.publisherFactory = func(string) publisher { return nil }

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestServiceProcessBatchMarksTerminalOnMaxAttempts(t *testing.T) {
	event := newEvent(t, enums.EventFundsReleased, "retry-exhausted")
	event.AttemptCount = 2
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("still down")}}}
	service := newTestService(t, repo, pub)
	service.maxAttempts = 3

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Empty(t, repo.failed)
}

func TestServiceProcessBatchDefersLaterEventsOfFailedAggregate(t *testing.T) {
	first := newEvent(t, enums.EventTransactionStateChange, "state-1")
	second := newEvent(t, enums.EventFundsReleased, "released-1")
	second.AggregateID = first.AggregateID
	other := newEvent(t, enums.EventFundsReleased, "other-1")
	repo := &fakeRepo{events: []models.OutboxEvent{first, second, other}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{other.ID}, repo.published)
	require.Len(t, pub.messages, 2)
	assert.Equal(t, "other-1", pub.messages[1].Attributes["event_id"])
	assert.Equal(t, []string{first.AggregateID.String()}, pub.resumed)
}

func TestServiceOrderingKeyOnlyOnEscrowTopic(t *testing.T) {
	escrow := newEvent(t, enums.EventFundsRefunded, "refund-1")
	notify := newEvent(t, enums.EventNotificationRequested, "notify-1")
	repo := &fakeRepo{events: []models.OutboxEvent{escrow, notify}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 2)
	assert.Equal(t, escrow.AggregateID.String(), pub.messages[0].OrderingKey)
	assert.Empty(t, pub.messages[1].OrderingKey)

	service.stopPublishers()
	assert.Equal(t, 2, pub.stopped)
	assert.Empty(t, service.publishers)
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{})
	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 500*time.Millisecond, 10*time.Second))
	assert.Equal(t, 10*time.Second, nextBackoff(8*time.Second, time.Second, 10*time.Second))
	assert.Equal(t, 2*time.Second, nextBackoff(0, time.Second, 10*time.Second))
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	cfg := &config.Config{
		PubSub: config.PubSubConfig{NotificationTopic: "escrow-notifications", EscrowTopic: "escrow-events"},
		Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 5},
	}
	router, err := outbox.NewRouter(cfg.PubSub)
	require.NoError(t, err)

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		Router:     router,
		PublisherFactory: func(topic string) publisher {
			if pub == nil {
				return nil
			}
			pub.topics = append(pub.topics, topic)
			return pub
		},
	})
	require.NoError(t, err)
	return service
}

func newEvent(tb testing.TB, eventType enums.OutboxEventType, eventID string) models.OutboxEvent {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	topics   []string
	resumed  []string
	stopped  int
}

func (f *fakePublisher) Resume(orderingKey string) {
	f.resumed = append(f.resumed, orderingKey)
}

func (f *fakePublisher) Stop() {
	f.stopped++
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}
