package compliance

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
)

// Repository reads the locally mirrored PEP and sanctions lists.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WatchlistEntries returns entries on req.List whose name matches req.FullName
// case-insensitively.
func (r *Repository) WatchlistEntries(ctx context.Context, req ScreenRequest) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	if err := r.base.DB(ctx).
		Where("list = ? AND LOWER(full_name) = ?", req.List, normalizeName(req.FullName)).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
