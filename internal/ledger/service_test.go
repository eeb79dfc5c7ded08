package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

type fakeRepository struct {
	Repository
	createFn func(ctx context.Context, payment *models.Payment) error
	payments []models.Payment
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, payment *models.Payment) error {
	if f.createFn != nil {
		return f.createFn(ctx, payment)
	}
	return nil
}

func (f *fakeRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Payment, error) {
	return f.payments, nil
}

func TestService_RecordLeg(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	seller := uuid.New()
	input := RecordLegInput{
		TransactionID: uuid.New(),
		PayeeID:       &seller,
		Type:          enums.PaymentTypeRelease,
		Amount:        decimal.RequireFromString("53625.004"),
		Currency:      "EUR",
	}

	var created *models.Payment
	repo.createFn = func(ctx context.Context, payment *models.Payment) error {
		created = payment
		return nil
	}

	got, err := svc.RecordLeg(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("RecordLeg error: %v", err)
	}
	if created == nil {
		t.Fatal("expected payment to be created")
	}
	if created.TransactionID != input.TransactionID || created.Type != enums.PaymentTypeRelease {
		t.Fatalf("unexpected payment data: %+v", created)
	}
	if !created.Amount.Equal(decimal.RequireFromString("53625")) {
		t.Fatalf("expected amount rounded to cents, got %s", created.Amount)
	}
	if created.Status != enums.PaymentStatusCompleted {
		t.Fatalf("expected completed leg, got %s", created.Status)
	}
	if got != created {
		t.Fatalf("service should return created payment")
	}
}

func TestService_RecordLegValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	valid := func() RecordLegInput {
		return RecordLegInput{
			TransactionID: uuid.New(),
			Type:          enums.PaymentTypeServiceFee,
			Amount:        decimal.NewFromInt(25),
			Currency:      "EUR",
		}
	}

	tests := []struct {
		name   string
		mutate func(*RecordLegInput)
	}{
		{"missing transaction", func(in *RecordLegInput) { in.TransactionID = uuid.Nil }},
		{"deposit type", func(in *RecordLegInput) { in.Type = enums.PaymentTypeDeposit }},
		{"unknown type", func(in *RecordLegInput) { in.Type = enums.PaymentType("bonus") }},
		{"zero amount", func(in *RecordLegInput) { in.Amount = decimal.Zero }},
		{"bad currency", func(in *RecordLegInput) { in.Currency = "EURO" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid()
			tc.mutate(&input)
			if _, err := svc.RecordLeg(context.Background(), nil, input); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestService_RecordLegRepoError(t *testing.T) {
	expectedErr := errors.New("boom")
	repo := &fakeRepository{createFn: func(ctx context.Context, payment *models.Payment) error {
		return expectedErr
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	if _, err := svc.RecordLeg(context.Background(), nil, RecordLegInput{
		TransactionID: uuid.New(),
		Type:          enums.PaymentTypeRefund,
		Amount:        decimal.NewFromInt(100),
		Currency:      "EUR",
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_HasLeg(t *testing.T) {
	repo := &fakeRepository{payments: []models.Payment{
		{Type: enums.PaymentTypeDeposit},
		{Type: enums.PaymentTypeRelease},
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	ok, err := svc.HasLeg(context.Background(), nil, uuid.New(), enums.PaymentTypeRelease)
	if err != nil || !ok {
		t.Fatalf("expected release leg, got %v %v", ok, err)
	}
	ok, err = svc.HasLeg(context.Background(), nil, uuid.New(), enums.PaymentTypeRefund)
	if err != nil || ok {
		t.Fatalf("expected no refund leg, got %v %v", ok, err)
	}
	if _, err := svc.HasLeg(context.Background(), nil, uuid.Nil, enums.PaymentTypeRefund); err == nil {
		t.Fatal("expected error for missing transaction id")
	}
}
