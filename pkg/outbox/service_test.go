package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	txnID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventFundsRefunded,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txnID,
			Data:          payloads.FundsRefundedEvent{TransactionID: txnID, Reason: "inspection failed"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)

	var data payloads.FundsRefundedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "inspection failed", data.Reason)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	id := uuid.New()

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventFundsReleased,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   id,
			Data:          map[string]string{"k": "v"},
		}))
		return errors.New("release failed")
	})

	count, err := repo.CountForAggregate(conn, id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxEvent{})
	svc := NewService(NewRepository(conn), nil)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "order_created"})
	assert.Error(t, err)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestRepositoryTerminalRowsAreSkipped(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(conn)
	first := models.OutboxEvent{EventType: enums.EventPaymentVerified, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventPaymentRejected, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload"), 3))
	require.NoError(t, repo.MarkPublishedTx(conn, rows[1].ID))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var all []models.OutboxEvent
	require.NoError(t, conn.Find(&all).Error)
	for _, row := range all {
		assert.False(t, row.Pending(), "row %s should be settled", row.ID)
	}
}

func TestRouterResolve(t *testing.T) {
	router, err := NewRouter(config.PubSubConfig{NotificationTopic: "notify", EscrowTopic: "escrow"})
	require.NoError(t, err)

	payload, _ := json.Marshal(PayloadEnvelope{Version: 1, EventID: "evt-1", Data: json.RawMessage(`{}`)})
	resolved, err := router.Resolve(models.OutboxEvent{EventType: enums.EventNotificationRequested, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "notify", resolved.Topic)
	assert.False(t, resolved.Ordered)
	assert.Equal(t, "evt-1", resolved.Envelope.EventID)

	resolved, err = router.Resolve(models.OutboxEvent{EventType: enums.EventFundsReleased, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "escrow", resolved.Topic)
	assert.True(t, resolved.Ordered)

	_, err = router.Resolve(models.OutboxEvent{EventType: enums.EventFundsReleased, Payload: json.RawMessage(`not json`)})
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))

	_, err = router.Resolve(models.OutboxEvent{EventType: "mystery", Payload: payload})
	assert.True(t, errors.As(err, &nonRetry))

	_, err = NewRouter(config.PubSubConfig{NotificationTopic: "notify"})
	assert.Error(t, err)
}

func TestNewEnvelopeStampsAggregateAndDefaults(t *testing.T) {
	id := uuid.New()
	env, err := NewEnvelope(DomainEvent{
		EventType:     enums.EventTransactionStateChange,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   id,
		Data:          map[string]string{"to": "payment_verified"},
	})
	require.NoError(t, err)
	assert.Equal(t, currentEnvelopeVersion, env.Version)
	assert.Equal(t, string(enums.EventTransactionStateChange), env.EventType)
	require.NotNil(t, env.Aggregate)
	assert.Equal(t, id, env.Aggregate.ID)
	assert.False(t, env.OccurredAt.IsZero())
	assert.JSONEq(t, `{"to":"payment_verified"}`, string(env.Data))

	_, err = NewEnvelope(DomainEvent{EventType: enums.EventFundsReleased, AggregateType: enums.AggregateTransaction})
	assert.Error(t, err)
}

func TestRouterCoversEveryEventType(t *testing.T) {
	router, err := NewRouter(config.PubSubConfig{NotificationTopic: "notify", EscrowTopic: "escrow"})
	require.NoError(t, err)
	payload, _ := json.Marshal(PayloadEnvelope{Version: 1, EventID: "evt", Data: json.RawMessage(`{}`)})
	for _, eventType := range enums.OutboxEventTypes() {
		_, err := router.Resolve(models.OutboxEvent{EventType: eventType, Payload: payload})
		assert.NoError(t, err, "event type %s has no route", eventType)
	}
}

func TestRepositoryPruneSettled(t *testing.T) {
	conn := dbtest.Open(t, &models.OutboxEvent{})
	repo := NewRepository(conn)
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)
	errMsg := "bad payload"

	rows := []models.OutboxEvent{
		{EventType: enums.EventFundsReleased, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &old},
		{EventType: enums.EventFundsReleased, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &recent},
		{EventType: enums.EventFundsRefunded, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), FailedAt: &old, AttemptCount: 5, LastError: &errMsg},
		{EventType: enums.EventFundsRefunded, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), FailedAt: &old, AttemptCount: 1, LastError: &errMsg},
		{EventType: enums.EventPaymentVerified, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(conn, row))
	}

	cutoff := now.Add(-24 * time.Hour)
	n, err := repo.PruneSettled(context.Background(), cutoff, 5, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = repo.PruneSettled(context.Background(), cutoff, 5, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	assert.EqualValues(t, 3, left)
}
