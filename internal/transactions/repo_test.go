package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

type fixture struct {
	db      *gorm.DB
	repo    Repository
	buyer   *models.User
	seller  *models.User
	vehicle *models.Vehicle
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t, models.All()...)
	buyer := dbtest.User(t, db, nil)
	seller := dbtest.User(t, db, nil)
	vehicle := dbtest.Vehicle(t, db, seller.ID, nil)
	return fixture{db: db, repo: NewRepository(db), buyer: buyer, seller: seller, vehicle: vehicle}
}

func (f fixture) txn(t *testing.T, mutate func(*models.Transaction)) *models.Transaction {
	return dbtest.Transaction(t, f.db, f.buyer.ID, f.seller.ID, f.vehicle.ID, mutate)
}

func TestTransitionIsOptimistic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := f.txn(t, func(m *models.Transaction) { m.Status = enums.TransactionStatusPaymentVerified })

	now := time.Now().UTC()
	moved, err := f.repo.Transition(ctx, txn.ID, enums.TransactionStatusPaymentVerified, enums.TransactionStatusRefunded, map[string]any{"refunded_at": now})
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = f.repo.Transition(ctx, txn.ID, enums.TransactionStatusPaymentVerified, enums.TransactionStatusRefunded, nil)
	require.NoError(t, err)
	assert.False(t, moved, "second transition from a stale status must be a no-op")

	got, err := f.repo.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusRefunded, got.Status)
	require.NotNil(t, got.RefundedAt)
}

func TestSumForBuyerSinceSkipsInactiveAndExcluded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.txn(t, func(m *models.Transaction) {
		m.Amount = decimal.NewFromInt(12000)
		m.CreatedAt = now.Add(-2 * time.Hour)
	})
	f.txn(t, func(m *models.Transaction) {
		m.Amount = decimal.NewFromInt(8000)
		m.CreatedAt = now.Add(-3 * time.Hour)
		m.Status = enums.TransactionStatusCancelled
	})
	f.txn(t, func(m *models.Transaction) {
		m.Amount = decimal.NewFromInt(30000)
		m.CreatedAt = now.Add(-48 * time.Hour)
	})
	current := f.txn(t, func(m *models.Transaction) { m.Amount = decimal.NewFromInt(5000); m.CreatedAt = now })

	total, err := f.repo.SumForBuyerSince(ctx, f.buyer.ID, now.Add(-24*time.Hour), current.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(12000)), "got %s", total)

	total, err = f.repo.SumForBuyerSince(ctx, f.buyer.ID, now.AddDate(0, 0, -30), uuid.Nil)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(47000)), "got %s", total)

	empty, err := f.repo.SumForBuyerSince(ctx, uuid.New(), now.AddDate(0, 0, -30), uuid.Nil)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestCountsAndSellerStats(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := f.txn(t, func(m *models.Transaction) { m.CreatedAt = now.Add(-time.Hour) })
	f.txn(t, func(m *models.Transaction) {
		m.CreatedAt = now.Add(-30 * time.Hour)
		m.Status = enums.TransactionStatusCancelled
	})
	f.txn(t, func(m *models.Transaction) {
		m.CreatedAt = now.Add(-72 * time.Hour)
		m.Status = enums.TransactionStatusCompleted
	})

	count, err := f.repo.CountForBuyerSince(ctx, f.buyer.ID, now.Add(-24*time.Hour), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	pair, err := f.repo.CountForPairSince(ctx, f.buyer.ID, f.seller.ID, now.Add(-48*time.Hour), first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pair)

	completed, err := f.repo.CountForBuyerByStatus(ctx, f.buyer.ID, enums.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), completed)

	require.NoError(t, f.repo.CreateDispute(ctx, &models.Dispute{TransactionID: first.ID, OpenedBy: f.buyer.ID, Reason: "damage", CreatedAt: now}))

	stats, err := f.repo.SellerStats(ctx, f.seller.ID)
	require.NoError(t, err)
	assert.Equal(t, SellerStats{Sales: 3, Cancelled: 1, Disputes: 1}, stats)
}

func TestDisputeLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := f.txn(t, nil)

	open, err := f.repo.HasOpenDispute(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, f.repo.CreateDispute(ctx, &models.Dispute{TransactionID: txn.ID, OpenedBy: f.buyer.ID, Reason: "no title"}))
	open, err = f.repo.HasOpenDispute(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, open)

	resolved, err := f.repo.ResolveOpenDispute(ctx, txn.ID, "release", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, resolved)

	open, err = f.repo.HasOpenDispute(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestSetAMLFlagsAndGetByReference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := f.txn(t, func(m *models.Transaction) { m.Status = enums.TransactionStatusAwaitingPayment })

	require.NoError(t, f.repo.SetAMLFlags(ctx, txn.ID, []string{"large_transaction", "cross_border"}))

	got, err := f.repo.GetByReference(ctx, txn.PaymentReference, enums.TransactionStatusAwaitingPayment)
	require.NoError(t, err)
	assert.Equal(t, []string{"large_transaction", "cross_border"}, []string(got.AMLFlags))

	_, err = f.repo.GetByReference(ctx, txn.PaymentReference, enums.TransactionStatusPending)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCandidateQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	verified := now.Add(-96 * time.Hour)
	recent := now.Add(-time.Hour)

	eligible := f.txn(t, func(m *models.Transaction) {
		m.Status = enums.TransactionStatusOwnershipTransferred
		m.InspectionResult = enums.InspectionResultPassed
		m.PaymentVerifiedAt = &verified
	})
	f.txn(t, func(m *models.Transaction) {
		m.Status = enums.TransactionStatusOwnershipTransferred
		m.InspectionResult = enums.InspectionResultPassed
		m.PaymentVerifiedAt = &recent
	})

	rows, err := f.repo.ListAutoReleaseCandidates(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eligible.ID, rows[0].ID)

	due := now.Add(2 * time.Hour)
	f.txn(t, func(m *models.Transaction) {
		m.Status = enums.TransactionStatusInspectionScheduled
		m.InspectionScheduledFor = &due
	})
	inspections, err := f.repo.ListInspectionsScheduledBetween(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, inspections, 1)

	f.txn(t, func(m *models.Transaction) {
		m.Status = enums.TransactionStatusAwaitingPayment
		m.CreatedAt = now.Add(-72 * time.Hour)
	})
	awaiting, err := f.repo.ListAwaitingPaymentCreatedBetween(ctx, now.AddDate(0, 0, -7), now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, awaiting, 1)
}
