package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/autoescrow-backend/pkg/db/types"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Transaction is one vehicle sale held in escrow. Rows are never deleted.
type Transaction struct {
	ID                      uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID                 uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID                uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	DealerID                *uuid.UUID              `gorm:"column:dealer_id;type:uuid"`
	VehicleID               uuid.UUID               `gorm:"column:vehicle_id;type:uuid;not null"`
	Amount                  decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency                string                  `gorm:"column:currency;type:char(3);not null"`
	Status                  enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	ServiceFee              decimal.Decimal         `gorm:"column:service_fee;type:numeric(14,2);not null;default:0"`
	DealerCommission        decimal.Decimal         `gorm:"column:dealer_commission;type:numeric(14,2);not null;default:0"`
	PaymentReference        string                  `gorm:"column:payment_reference;not null;uniqueIndex"`
	EscrowAccountID         string                  `gorm:"column:escrow_account_id;not null"`
	PaymentVerifiedAt       *time.Time              `gorm:"column:payment_verified_at"`
	OwnershipTransferredAt  *time.Time              `gorm:"column:ownership_transferred_at"`
	InspectionScheduledFor  *time.Time              `gorm:"column:inspection_scheduled_for"`
	InspectionCompletedAt   *time.Time              `gorm:"column:inspection_completed_at"`
	InspectionResult        enums.InspectionResult  `gorm:"column:inspection_result;type:inspection_result;not null;default:'pending'"`
	InspectionFailureReason *string                 `gorm:"column:inspection_failure_reason"`
	CompletedAt             *time.Time              `gorm:"column:completed_at"`
	CancelledAt             *time.Time              `gorm:"column:cancelled_at"`
	CancellationReason      *string                 `gorm:"column:cancellation_reason"`
	RefundedAt              *time.Time              `gorm:"column:refunded_at"`
	RefundReason            *string                 `gorm:"column:refund_reason"`
	AMLFlags                dbtypes.StringList      `gorm:"column:aml_flags;type:jsonb;not null;default:'[]'"`
	CreatedAt               time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// HasDealer reports whether a dealer brokered the sale.
func (t *Transaction) HasDealer() bool {
	return t.DealerID != nil && *t.DealerID != uuid.Nil
}

// IsClosed reports whether the transaction reached a terminal state.
func (t *Transaction) IsClosed() bool {
	switch t.Status {
	case enums.TransactionStatusCompleted, enums.TransactionStatusCancelled, enums.TransactionStatusRefunded:
		return true
	}
	return false
}
