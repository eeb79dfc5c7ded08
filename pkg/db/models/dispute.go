package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Dispute blocks fund release while open. At most one open dispute per transaction.
type Dispute struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null;index"`
	OpenedBy      uuid.UUID           `gorm:"column:opened_by;type:uuid;not null"`
	Status        enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null;default:'open'"`
	Reason        string              `gorm:"column:reason;not null"`
	Resolution    *string             `gorm:"column:resolution"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt    *time.Time          `gorm:"column:resolved_at"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
