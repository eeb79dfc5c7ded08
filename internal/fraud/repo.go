package fraud

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
)

// Repository reads the fraud reference tables.
type Repository interface {
	IsBlacklisted(ctx context.Context, userID uuid.UUID) (bool, error)
	IsVINStolen(ctx context.Context, vin string) (bool, error)
	DeviceSignal(ctx context.Context, userID uuid.UUID) (DeviceSignal, error)
	ComparableAveragePrice(ctx context.Context, vehicle *models.Vehicle, yearRange int) (decimal.Decimal, error)
}

type repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) IsBlacklisted(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.base.DB(ctx).Model(&models.BlacklistEntry{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *repository) IsVINStolen(ctx context.Context, vin string) (bool, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.StolenVehicle{}).
		Where("UPPER(vin) = ?", strings.ToUpper(strings.TrimSpace(vin))).
		Count(&count).Error
	return count > 0, err
}

// DeviceSignal reports whether any of the user's devices was also seen for a
// different account, and whether any of them came through a VPN.
func (r *repository) DeviceSignal(ctx context.Context, userID uuid.UUID) (DeviceSignal, error) {
	db := r.base.DB(ctx)
	var signal DeviceSignal

	var vpn int64
	if err := db.Model(&models.DeviceFingerprint{}).
		Where("user_id = ? AND vpn_detected = ?", userID, true).
		Count(&vpn).Error; err != nil {
		return signal, err
	}
	signal.VPN = vpn > 0

	own := db.Model(&models.DeviceFingerprint{}).Select("fingerprint").Where("user_id = ?", userID)
	var shared int64
	if err := db.Model(&models.DeviceFingerprint{}).
		Where("fingerprint IN (?) AND user_id <> ?", own, userID).
		Count(&shared).Error; err != nil {
		return signal, err
	}
	signal.SharedDevice = shared > 0
	return signal, nil
}

// ComparableAveragePrice averages listings of the same make within yearRange
// model years, excluding the vehicle itself. Zero means no comparables.
func (r *repository) ComparableAveragePrice(ctx context.Context, vehicle *models.Vehicle, yearRange int) (decimal.Decimal, error) {
	avg := decimal.Zero
	var raw *float64
	err := r.base.DB(ctx).
		Model(&models.Vehicle{}).
		Select("AVG(price)").
		Where("LOWER(make) = ? AND year BETWEEN ? AND ? AND id <> ?",
			strings.ToLower(vehicle.Make), vehicle.Year-yearRange, vehicle.Year+yearRange, vehicle.ID).
		Row().Scan(&raw)
	if err != nil {
		return avg, err
	}
	if raw != nil {
		avg = decimal.NewFromFloat(*raw).Round(2)
	}
	return avg, nil
}
