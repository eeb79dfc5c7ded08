package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// AuditEntry is an immutable record of one compliance, risk or reconciliation check.
type AuditEntry struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;type:audit_entity_type;not null"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index"`
	CheckType  enums.AuditCheckType  `gorm:"column:check_type;type:audit_check_type;not null"`
	Result     enums.AuditResult     `gorm:"column:result;type:audit_result;not null"`
	RiskLevel  *enums.RiskLevel      `gorm:"column:risk_level;type:risk_level"`
	Evidence   json.RawMessage       `gorm:"column:evidence;type:jsonb;not null"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
