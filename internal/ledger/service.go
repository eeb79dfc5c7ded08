package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// Service records payout legs.
type Service interface {
	RecordLeg(ctx context.Context, tx *gorm.DB, input RecordLegInput) (*models.Payment, error)
	HasLeg(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, legType enums.PaymentType) (bool, error)
}

type service struct {
	repo Repository
}

// RecordLegInput captures the immutable data a payout leg requires.
type RecordLegInput struct {
	TransactionID uuid.UUID
	PayerID       *uuid.UUID
	PayeeID       *uuid.UUID
	Type          enums.PaymentType
	Amount        decimal.Decimal
	Currency      string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordLeg writes a completed payout leg. Deposits are never recorded here;
// they arrive through reconciliation.
func (s *service) RecordLeg(ctx context.Context, tx *gorm.DB, input RecordLegInput) (*models.Payment, error) {
	if input.TransactionID == uuid.Nil {
		return nil, fmt.Errorf("transaction id is required")
	}
	if !input.Type.IsValid() || input.Type == enums.PaymentTypeDeposit {
		return nil, fmt.Errorf("invalid payout leg type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("leg amount must be positive")
	}
	if len(input.Currency) != 3 {
		return nil, fmt.Errorf("invalid currency %q", input.Currency)
	}

	payment := &models.Payment{
		TransactionID: input.TransactionID,
		PayerID:       input.PayerID,
		PayeeID:       input.PayeeID,
		Amount:        input.Amount.Round(2),
		Currency:      input.Currency,
		Type:          input.Type,
		Status:        enums.PaymentStatusCompleted,
	}
	if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) HasLeg(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, legType enums.PaymentType) (bool, error) {
	if transactionID == uuid.Nil {
		return false, fmt.Errorf("transaction id is required")
	}
	if !legType.IsValid() {
		return false, fmt.Errorf("invalid payment type %q", legType)
	}

	payments, err := s.repo.WithTx(tx).ListByTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	for _, payment := range payments {
		if payment.Type == legType {
			return true, nil
		}
	}
	return false, nil
}
