// Package transactions is the persistence layer for escrow transactions and
// their disputes. Status changes go through Transition so concurrent sweeps
// and webhooks never double-apply a move.
package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/autoescrow-backend/pkg/db/types"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

// inactiveStatuses never count toward limits or history totals.
var inactiveStatuses = []enums.TransactionStatus{
	enums.TransactionStatusCancelled,
	enums.TransactionStatusRefunded,
}

// SellerStats summarises a seller's track record.
type SellerStats struct {
	Sales     int64
	Cancelled int64
	Disputes  int64
}

// Repository defines persistence operations for transactions and disputes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string, status enums.TransactionStatus) (*models.Transaction, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error)
	SetAMLFlags(ctx context.Context, id uuid.UUID, flags []string) error
	ListAutoReleaseCandidates(ctx context.Context, verifiedBefore time.Time) ([]models.Transaction, error)
	ListInspectionsScheduledBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
	ListAwaitingPaymentCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error)

	SumForBuyerSince(ctx context.Context, buyerID uuid.UUID, since time.Time, exclude uuid.UUID) (decimal.Decimal, error)
	CountForBuyerSince(ctx context.Context, buyerID uuid.UUID, since time.Time, exclude uuid.UUID) (int64, error)
	CountForPairSince(ctx context.Context, buyerID, sellerID uuid.UUID, since time.Time, exclude uuid.UUID) (int64, error)
	CountForBuyerByStatus(ctx context.Context, buyerID uuid.UUID, statuses ...enums.TransactionStatus) (int64, error)
	SellerStats(ctx context.Context, sellerID uuid.UUID) (SellerStats, error)

	HasOpenDispute(ctx context.Context, transactionID uuid.UUID) (bool, error)
	CreateDispute(ctx context.Context, dispute *models.Dispute) error
	ResolveOpenDispute(ctx context.Context, transactionID uuid.UUID, resolution string, at time.Time) (bool, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a transactions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.base.DB(ctx).Create(txn).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.base.DB(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) GetByReference(ctx context.Context, reference string, status enums.TransactionStatus) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.base.DB(ctx).
		Where("payment_reference = ? AND status = ?", reference, status).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// Transition applies updates and moves the row from -> to only while it is
// still in from. It reports false when another writer got there first.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	result := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetAMLFlags(ctx context.Context, id uuid.UUID, flags []string) error {
	return r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("aml_flags", dbtypes.StringList(flags)).Error
}

func (r *repository) ListAutoReleaseCandidates(ctx context.Context, verifiedBefore time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.base.DB(ctx).
		Where("status = ? AND inspection_result = ?", enums.TransactionStatusOwnershipTransferred, enums.InspectionResultPassed).
		Where("payment_verified_at IS NOT NULL AND payment_verified_at <= ?", verifiedBefore).
		Order("payment_verified_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListInspectionsScheduledBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.base.DB(ctx).
		Where("status = ?", enums.TransactionStatusInspectionScheduled).
		Where("inspection_scheduled_for >= ? AND inspection_scheduled_for < ?", from, to).
		Order("inspection_scheduled_for ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAwaitingPaymentCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.base.DB(ctx).
		Where("status = ?", enums.TransactionStatusAwaitingPayment).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumForBuyerSince(ctx context.Context, buyerID uuid.UUID, since time.Time, exclude uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("buyer_id = ? AND created_at >= ? AND id <> ?", buyerID, since, exclude).
		Where("status NOT IN ?", inactiveStatuses).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) CountForBuyerSince(ctx context.Context, buyerID uuid.UUID, since time.Time, exclude uuid.UUID) (int64, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("buyer_id = ? AND created_at >= ? AND id <> ?", buyerID, since, exclude).
		Count(&count).Error
	return count, err
}

func (r *repository) CountForPairSince(ctx context.Context, buyerID, sellerID uuid.UUID, since time.Time, exclude uuid.UUID) (int64, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("buyer_id = ? AND seller_id = ? AND created_at >= ? AND id <> ?", buyerID, sellerID, since, exclude).
		Count(&count).Error
	return count, err
}

func (r *repository) CountForBuyerByStatus(ctx context.Context, buyerID uuid.UUID, statuses ...enums.TransactionStatus) (int64, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.Transaction{}).
		Where("buyer_id = ? AND status IN ?", buyerID, statuses).
		Count(&count).Error
	return count, err
}

func (r *repository) SellerStats(ctx context.Context, sellerID uuid.UUID) (SellerStats, error) {
	var stats SellerStats
	db := r.base.DB(ctx)
	if err := db.Model(&models.Transaction{}).
		Where("seller_id = ?", sellerID).
		Count(&stats.Sales).Error; err != nil {
		return SellerStats{}, err
	}
	if err := db.Model(&models.Transaction{}).
		Where("seller_id = ? AND status = ?", sellerID, enums.TransactionStatusCancelled).
		Count(&stats.Cancelled).Error; err != nil {
		return SellerStats{}, err
	}
	if err := db.Model(&models.Dispute{}).
		Joins("JOIN transactions ON transactions.id = disputes.transaction_id").
		Where("transactions.seller_id = ?", sellerID).
		Count(&stats.Disputes).Error; err != nil {
		return SellerStats{}, err
	}
	return stats, nil
}

func (r *repository) HasOpenDispute(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.Dispute{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.DisputeStatusOpen).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateDispute(ctx context.Context, dispute *models.Dispute) error {
	return r.base.DB(ctx).Create(dispute).Error
}

func (r *repository) ResolveOpenDispute(ctx context.Context, transactionID uuid.UUID, resolution string, at time.Time) (bool, error) {
	result := r.base.DB(ctx).
		Model(&models.Dispute{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.DisputeStatusOpen).
		Updates(map[string]any{
			"status":      enums.DisputeStatusResolved,
			"resolution":  resolution,
			"resolved_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
