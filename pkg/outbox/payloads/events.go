package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// NotificationRequestedEvent asks the delivery service to alert one user.
type NotificationRequestedEvent struct {
	UserID        uuid.UUID              `json:"user_id"`
	Type          enums.NotificationType `json:"type"`
	TransactionID *uuid.UUID             `json:"transaction_id,omitempty"`
	Data          map[string]any         `json:"data,omitempty"`
}

// TransactionStateChangedEvent is emitted on every escrow transition.
type TransactionStateChangedEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	From          enums.TransactionStatus `json:"from"`
	To            enums.TransactionStatus `json:"to"`
	Reason        string                  `json:"reason,omitempty"`
	ChangedAt     time.Time               `json:"changed_at"`
}

// FundsReleasedEvent carries the payout breakdown of a completed transaction.
type FundsReleasedEvent struct {
	TransactionID    uuid.UUID       `json:"transaction_id"`
	SellerID         uuid.UUID       `json:"seller_id"`
	SellerAmount     decimal.Decimal `json:"seller_amount"`
	ServiceFee       decimal.Decimal `json:"service_fee"`
	DealerCommission decimal.Decimal `json:"dealer_commission"`
	Currency         string          `json:"currency"`
	PaymentIDs       []uuid.UUID     `json:"payment_ids"`
}

// FundsRefundedEvent is emitted when escrowed funds return to the buyer.
type FundsRefundedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Reason        string          `json:"reason"`
}

// PaymentReconciledEvent is emitted when reconciliation verifies or rejects a deposit.
type PaymentReconciledEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
	Reason        string              `json:"reason,omitempty"`
}
