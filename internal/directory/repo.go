// Package directory gives the risk engine read access to users, vehicles and
// dealers owned by the marketplace services.
package directory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Repository exposes the directory lookups the engine depends on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	GetDealer(ctx context.Context, id uuid.UUID) (*models.Dealer, error)
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	SetVehicleStatus(ctx context.Context, id uuid.UUID, status enums.VehicleStatus) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a directory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.base.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := r.base.DB(ctx).First(&vehicle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *repository) GetDealer(ctx context.Context, id uuid.UUID) (*models.Dealer, error) {
	var dealer models.Dealer
	if err := r.base.DB(ctx).First(&dealer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dealer, nil
}

func (r *repository) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.base.DB(ctx).
		Model(&models.User{}).
		Where("role = ?", enums.UserRoleAdmin).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SetVehicleStatus flips listing availability. A missing vehicle is an error
// so the enclosing unit of work rolls back.
func (r *repository) SetVehicleStatus(ctx context.Context, id uuid.UUID, status enums.VehicleStatus) error {
	result := r.base.DB(ctx).
		Model(&models.Vehicle{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
