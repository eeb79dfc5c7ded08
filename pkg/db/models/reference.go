package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// BlacklistEntry bars a user from buying.
type BlacklistEntry struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Reason    string    `gorm:"column:reason;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (b *BlacklistEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// StolenVehicle is the local stolen-VIN registry, consulted before external registries.
type StolenVehicle struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VIN        string    `gorm:"column:vin;not null;index"`
	Source     string    `gorm:"column:source;not null"`
	ReportedAt time.Time `gorm:"column:reported_at;not null"`
}

func (s *StolenVehicle) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// WatchlistEntry is one person on a locally mirrored PEP or sanctions list.
type WatchlistEntry struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	List        enums.WatchlistList `gorm:"column:list;type:watchlist_list;not null;index"`
	FullName    string              `gorm:"column:full_name;not null"`
	Country     *string             `gorm:"column:country;type:char(2)"`
	DateOfBirth *time.Time          `gorm:"column:date_of_birth;type:date"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (w *WatchlistEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// DeviceFingerprint records a device observed for a user session.
type DeviceFingerprint struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Fingerprint string    `gorm:"column:fingerprint;not null;index"`
	VPNDetected bool      `gorm:"column:vpn_detected;not null;default:false"`
	SeenAt      time.Time `gorm:"column:seen_at;not null"`
}

func (d *DeviceFingerprint) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
