// Package notifications queues user-facing notifications for the external
// delivery service through the transactional outbox.
package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox/payloads"
)

// Payload is the template data attached to a notification.
type Payload struct {
	TransactionID *uuid.UUID
	Data          map[string]any
}

// Notifier is the fire-and-forget surface used by the engine. Failures are
// logged by the implementation and never reach the caller's mutation.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, kind enums.NotificationType, payload Payload)
	NotifyAdmins(ctx context.Context, tx *gorm.DB, kind enums.NotificationType, payload Payload) int
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Dispatcher writes notification_requested outbox events.
type Dispatcher struct {
	db        *gorm.DB
	outbox    emitter
	directory directory.Repository
	logg      *logger.Logger
}

// NewDispatcher wires the dispatcher. db is used when callers have no open unit of work.
func NewDispatcher(db *gorm.DB, out emitter, dir directory.Repository, logg *logger.Logger) (*Dispatcher, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if out == nil {
		return nil, errors.New("outbox service required")
	}
	if dir == nil {
		return nil, errors.New("directory repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{db: db, outbox: out, directory: dir, logg: logg}, nil
}

// Notify queues one notification. The event is written in a savepoint so a
// failure rolls back only the notification; it is logged and swallowed.
func (d *Dispatcher) Notify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, kind enums.NotificationType, payload Payload) {
	if tx == nil {
		tx = d.db.WithContext(ctx)
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   userID,
		Data: payloads.NotificationRequestedEvent{
			UserID:        userID,
			Type:          kind,
			TransactionID: payload.TransactionID,
			Data:          payload.Data,
		},
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		return d.outbox.Emit(ctx, sp, event)
	})
	if err != nil {
		fields := map[string]any{
			"user_id":           userID.String(),
			"notification_type": kind,
			"error":             err.Error(),
		}
		d.logg.Warn(d.logg.WithFields(ctx, fields), "notification dispatch failed")
	}
}

// NotifyAdmins sends kind to every admin account and returns how many were
// addressed. A failed admin lookup addresses nobody.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, tx *gorm.DB, kind enums.NotificationType, payload Payload) int {
	dir := d.directory
	if tx != nil {
		dir = dir.WithTx(tx)
	}
	adminIDs, err := dir.ListAdminIDs(ctx)
	if err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "admin lookup failed; admins not notified")
		return 0
	}
	for _, id := range adminIDs {
		d.Notify(ctx, tx, id, kind, payload)
	}
	return len(adminIDs)
}
