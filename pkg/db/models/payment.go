package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Payment is one monetary leg of a transaction. Completed payments are immutable.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID   uuid.UUID           `gorm:"column:transaction_id;type:uuid;not null;index"`
	PayerID         *uuid.UUID          `gorm:"column:payer_id;type:uuid"`
	PayeeID         *uuid.UUID          `gorm:"column:payee_id;type:uuid"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency        string              `gorm:"column:currency;type:char(3);not null"`
	Type            enums.PaymentType   `gorm:"column:type;type:payment_type;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'submitted'"`
	BankReference   *string             `gorm:"column:bank_reference"`
	ProofHash       *string             `gorm:"column:proof_hash"`
	VerifiedAt      *time.Time          `gorm:"column:verified_at"`
	BankAPIResponse json.RawMessage     `gorm:"column:bank_api_response;type:jsonb"`
	RejectionReason *string             `gorm:"column:rejection_reason"`
	ReviewFlag      bool                `gorm:"column:review_flag;not null;default:false"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
