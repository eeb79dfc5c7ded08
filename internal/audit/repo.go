package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/pagination"
)

// Repository is append-only: entries are inserted and read, never changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, checkTypes ...enums.AuditCheckType) ([]models.AuditEntry, error)
	Latest(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, checkType enums.AuditCheckType) (*models.AuditEntry, error)
	Page(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.AuditEntry, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Append(ctx context.Context, entry *models.AuditEntry) error {
	return r.base.DB(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, checkTypes ...enums.AuditCheckType) ([]models.AuditEntry, error) {
	query := r.base.DB(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if len(checkTypes) > 0 {
		query = query.Where("check_type IN ?", checkTypes)
	}
	var entries []models.AuditEntry
	if err := query.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Latest returns the newest entry of checkType, or nil when none exists.
func (r *repository) Latest(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, checkType enums.AuditCheckType) (*models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := r.base.DB(ctx).
		Where("entity_type = ? AND entity_id = ? AND check_type = ?", entityType, entityID, checkType).
		Order("created_at DESC").
		Limit(1).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Page returns up to limit entries newest first, strictly older than cursor.
func (r *repository) Page(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.AuditEntry, error) {
	query := r.base.DB(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var entries []models.AuditEntry
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
