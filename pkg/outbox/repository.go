package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish returns pending rows that have not exhausted
// their attempts or been marked terminal, oldest first. Rows already claimed
// by another publisher are skipped.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND failed_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx stops retries for a row. The row stays for operators to inspect.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": terminalAttempts,
			"failed_at":     time.Now().UTC(),
		}).Error
}

// CountForAggregate is used by tests and operators to inspect emitted events.
func (r *Repository) CountForAggregate(tx *gorm.DB, aggregateID uuid.UUID) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", aggregateID).Count(&count).Error
	return count, err
}

// PruneSettled deletes at most limit rows that were delivered before cutoff,
// or went terminal before cutoff after at least minAttemptCount attempts.
func (r *Repository) PruneSettled(ctx context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	batch := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Select("id").
		Where("(published_at IS NOT NULL AND published_at < ?) OR (failed_at IS NOT NULL AND failed_at < ? AND attempt_count >= ?)",
			cutoff, cutoff, minAttemptCount).
		Order("created_at").
		Limit(limit)
	result := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.OutboxEvent{})
	return result.RowsAffected, result.Error
}
