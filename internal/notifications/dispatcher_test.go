package notifications

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

	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox/payloads"
)

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func newDispatcher(t *testing.T, db *gorm.DB, out emitter) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(db, out, directory.NewRepository(db), logger.Nop())
	require.NoError(t, err)
	return d
}

func TestNotifyWritesOutboxEvent(t *testing.T) {
	db := dbtest.Open(t, &models.User{}, &models.OutboxEvent{})
	svc := outbox.NewService(outbox.NewRepository(db), logger.Nop())
	d := newDispatcher(t, db, svc)

	userID := uuid.New()
	txnID := uuid.New()
	d.Notify(context.Background(), nil, userID, enums.NotificationFundsReleased, Payload{
		TransactionID: &txnID,
		Data:          map[string]any{"amount": "100.00"},
	})

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, userID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var data payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, enums.NotificationFundsReleased, data.Type)
	require.NotNil(t, data.TransactionID)
	assert.Equal(t, txnID, *data.TransactionID)
}

func TestNotifyFailureDoesNotAbortEnclosingWork(t *testing.T) {
	db := dbtest.Open(t, &models.User{}, &models.OutboxEvent{})
	d := newDispatcher(t, db, failingEmitter{})

	user := models.User{Email: "seller@example.com", Country: "DE", FirstName: "Sam", LastName: "Seller", CreatedAt: time.Now().UTC()}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		d.Notify(context.Background(), tx, user.ID, enums.NotificationPaymentReceived, Payload{})
		return nil
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNotifyAdmins(t *testing.T) {
	db := dbtest.Open(t, &models.User{}, &models.OutboxEvent{})
	now := time.Now().UTC()
	for i, email := range []string{"a1@example.com", "a2@example.com"} {
		admin := models.User{Email: email, Country: "DE", FirstName: "Admin", LastName: "X", Role: enums.UserRoleAdmin, CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Create(&admin).Error)
	}
	regular := models.User{Email: "u@example.com", Country: "DE", FirstName: "U", LastName: "Ser", CreatedAt: now}
	require.NoError(t, db.Create(&regular).Error)

	svc := outbox.NewService(outbox.NewRepository(db), logger.Nop())
	d := newDispatcher(t, db, svc)

	var notified int
	err := db.Transaction(func(tx *gorm.DB) error {
		notified = d.NotifyAdmins(context.Background(), tx, enums.NotificationAuthorityAlert, Payload{Data: map[string]any{"vin": "X"}})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, notified)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
