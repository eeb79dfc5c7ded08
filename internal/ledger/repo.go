// Package ledger persists the monetary legs of escrow transactions: buyer
// deposits plus the release, refund, fee and commission payouts.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// pendingDepositStatuses are deposits still waiting on a bank confirmation.
var pendingDepositStatuses = []enums.PaymentStatus{
	enums.PaymentStatusSubmitted,
	enums.PaymentStatusPendingManualReview,
}

// Repository manages persistence for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Payment, error)
	OpenDeposit(ctx context.Context, transactionID uuid.UUID) (*models.Payment, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error)
	FlagForReview(ctx context.Context, id uuid.UUID) (bool, error)

	ListPendingDeposits(ctx context.Context, createdAfter time.Time) ([]models.Payment, error)
	ListStaleSubmittedDeposits(ctx context.Context, createdBefore time.Time) ([]models.Payment, error)
	ListDepositsSince(ctx context.Context, since time.Time) ([]models.Payment, error)
	VerifiedBankReferenceExists(ctx context.Context, reference string, exclude uuid.UUID) (bool, error)
	VerifiedProofHashExists(ctx context.Context, hash string, exclude uuid.UUID) (bool, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.base.DB(ctx).Create(payment).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.base.DB(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.base.DB(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// OpenDeposit returns the newest deposit that is neither rejected nor
// completed, or gorm.ErrRecordNotFound.
func (r *repository) OpenDeposit(ctx context.Context, transactionID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.base.DB(ctx).
		Where("transaction_id = ? AND type = ? AND status NOT IN ?", transactionID, enums.PaymentTypeDeposit,
			[]enums.PaymentStatus{enums.PaymentStatusRejected, enums.PaymentStatusCompleted}).
		Order("created_at DESC").
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// Transition moves a payment from -> to only while it is still in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	result := r.base.DB(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FlagForReview sets review_flag once; it reports false if already flagged.
func (r *repository) FlagForReview(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.base.DB(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND review_flag = ?", id, false).
		Update("review_flag", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListPendingDeposits(ctx context.Context, createdAfter time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.base.DB(ctx).
		Where("type = ? AND status IN ? AND created_at >= ?", enums.PaymentTypeDeposit, pendingDepositStatuses, createdAfter).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListStaleSubmittedDeposits returns unflagged submitted deposits created at
// or before createdBefore.
func (r *repository) ListStaleSubmittedDeposits(ctx context.Context, createdBefore time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.base.DB(ctx).
		Where("type = ? AND status = ? AND review_flag = ? AND created_at <= ?",
			enums.PaymentTypeDeposit, enums.PaymentStatusSubmitted, false, createdBefore).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) ListDepositsSince(ctx context.Context, since time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.base.DB(ctx).
		Where("type = ? AND created_at >= ?", enums.PaymentTypeDeposit, since).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) VerifiedBankReferenceExists(ctx context.Context, reference string, exclude uuid.UUID) (bool, error) {
	return r.verifiedExists(ctx, "bank_reference = ?", reference, exclude)
}

func (r *repository) VerifiedProofHashExists(ctx context.Context, hash string, exclude uuid.UUID) (bool, error) {
	return r.verifiedExists(ctx, "proof_hash = ?", hash, exclude)
}

func (r *repository) verifiedExists(ctx context.Context, clause string, value string, exclude uuid.UUID) (bool, error) {
	if value == "" {
		return false, nil
	}
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.Payment{}).
		Where(clause, value).
		Where("status IN ? AND id <> ?", []enums.PaymentStatus{enums.PaymentStatusVerified, enums.PaymentStatusCompleted}, exclude).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
