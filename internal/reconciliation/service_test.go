package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/internal/ledger"
	"github.com/angelmondragon/autoescrow-backend/internal/notifications"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/db"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
)

const validIBAN = "DE89 3704 0044 0532 0130 00"

type stubSearcher struct {
	results map[string]SearchResult
	err     error
}

func (s *stubSearcher) Name() string { return "stub" }

func (s *stubSearcher) Search(_ context.Context, q StatementQuery) (SearchResult, error) {
	if s.err != nil {
		return SearchResult{}, s.err
	}
	return s.results[q.Reference], nil
}

type env struct {
	db       *gorm.DB
	svc      *Service
	audit    *audit.Service
	searcher *stubSearcher
	now      time.Time
	buyer    *models.User
	seller   *models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := dbtest.Open(t, models.All()...)
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	require.NoError(t, err)
	dir := directory.NewRepository(conn)
	out := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	dispatcher, err := notifications.NewDispatcher(conn, out, dir, logger.Nop())
	require.NoError(t, err)
	searcher := &stubSearcher{results: map[string]SearchResult{}}

	svc, err := NewService(ServiceParams{
		DB:           db.FromGorm(conn),
		Transactions: transactions.NewRepository(conn),
		Payments:     ledger.NewRepository(conn),
		Searcher:     searcher,
		Notifier:     dispatcher,
		Outbox:       out,
		Audit:        auditSvc,
		Workers:      2,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)
	return &env{
		db:       conn,
		svc:      svc,
		audit:    auditSvc,
		searcher: searcher,
		now:      now,
		buyer:    dbtest.User(t, conn, nil),
		seller:   dbtest.User(t, conn, nil),
	}
}

func (e *env) txn(t *testing.T, status enums.TransactionStatus) *models.Transaction {
	t.Helper()
	vehicle := dbtest.Vehicle(t, e.db, e.seller.ID, nil)
	return dbtest.Transaction(t, e.db, e.buyer.ID, e.seller.ID, vehicle.ID, func(m *models.Transaction) {
		m.Status = status
	})
}

func (e *env) deposit(t *testing.T, txn *models.Transaction, age time.Duration, mutate func(*models.Payment)) *models.Payment {
	t.Helper()
	return dbtest.Payment(t, e.db, txn, func(p *models.Payment) {
		p.CreatedAt = e.now.Add(-age)
		if mutate != nil {
			mutate(p)
		}
	})
}

func (e *env) payment(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, e.db.First(&p, "id = ?", id).Error)
	return p
}

func (e *env) status(t *testing.T, id uuid.UUID) enums.TransactionStatus {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, e.db.First(&txn, "id = ?", id).Error)
	return txn.Status
}

func (e *env) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestReconcileVerifiesMatchedDeposit(t *testing.T) {
	e := newEnv(t)
	txn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	deposit := e.deposit(t, txn, 2*time.Hour, nil)
	raw := json.RawMessage(`{"found":true,"entry":{"entry_id":"ST-1"}}`)
	e.searcher.results[txn.PaymentReference] = SearchResult{
		Found: true,
		Entry: &StatementEntry{EntryID: "ST-1", Amount: txn.Amount, Currency: "EUR"},
		Raw:   raw,
	}

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ReconcileSummary{Checked: 1, Verified: 1}, summary)

	stored := e.payment(t, deposit.ID)
	assert.Equal(t, enums.PaymentStatusVerified, stored.Status)
	require.NotNil(t, stored.VerifiedAt)
	require.NotNil(t, stored.BankReference)
	assert.Equal(t, "ST-1", *stored.BankReference)
	assert.JSONEq(t, string(raw), string(stored.BankAPIResponse))

	var updated models.Transaction
	require.NoError(t, e.db.First(&updated, "id = ?", txn.ID).Error)
	assert.Equal(t, enums.TransactionStatusPaymentVerified, updated.Status)
	assert.NotNil(t, updated.PaymentVerifiedAt)
	assert.EqualValues(t, 1, e.countEvents(t, enums.EventPaymentVerified))
	assert.EqualValues(t, 2, e.countEvents(t, enums.EventNotificationRequested))
}

func TestReconcileIgnoresAmountMismatchFromProvider(t *testing.T) {
	e := newEnv(t)
	txn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	deposit := e.deposit(t, txn, time.Hour, nil)
	e.searcher.results[txn.PaymentReference] = SearchResult{
		Found: true,
		Entry: &StatementEntry{EntryID: "ST-2", Amount: txn.Amount.Sub(decimal.NewFromInt(100)), Currency: "EUR"},
	}

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ManualReview)
	assert.Equal(t, enums.PaymentStatusPendingManualReview, e.payment(t, deposit.ID).Status)
	assert.Equal(t, enums.TransactionStatusPaymentSubmitted, e.status(t, txn.ID))
}

func TestReconcileTreatsSearchFailureAsNotFound(t *testing.T) {
	e := newEnv(t)
	e.searcher.err = errors.New("bank api timeout")
	txn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	young := e.deposit(t, txn, 3*24*time.Hour, nil)

	oldTxn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	old := e.deposit(t, oldTxn, 15*24*time.Hour, nil)

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.ManualReview)
	assert.Equal(t, 1, summary.Rejected)

	assert.Equal(t, enums.PaymentStatusPendingManualReview, e.payment(t, young.ID).Status)
	rejected := e.payment(t, old.ID)
	assert.Equal(t, enums.PaymentStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, ReasonNoStatement, *rejected.RejectionReason)
	assert.EqualValues(t, 1, e.countEvents(t, enums.EventPaymentRejected))

	trail, err := e.audit.Trail(context.Background(), enums.AuditEntityPayment, old.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, enums.AuditResultFailed, trail[0].Result)
}

func TestReconcileFlagsDuplicateReference(t *testing.T) {
	e := newEnv(t)
	ref := "BANK-REF-7"
	earlier := e.txn(t, enums.TransactionStatusPaymentVerified)
	e.deposit(t, earlier, 5*24*time.Hour, func(p *models.Payment) {
		p.BankReference = &ref
		p.Status = enums.PaymentStatusVerified
	})
	txn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	dup := e.deposit(t, txn, 20*24*time.Hour, func(p *models.Payment) { p.BankReference = &ref })

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, enums.PaymentStatusSubmitted, e.payment(t, dup.ID).Status, "duplicates keep their status even past the reject window")

	trail, err := e.audit.Trail(context.Background(), enums.AuditEntityPayment, dup.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, enums.AuditResultFlagged, trail[0].Result)
}

func TestReconcileRejectsDepositOfClosedTransaction(t *testing.T) {
	e := newEnv(t)
	txn := e.txn(t, enums.TransactionStatusCancelled)
	deposit := e.deposit(t, txn, 20*24*time.Hour, nil)
	e.searcher.results[txn.PaymentReference] = SearchResult{
		Found: true,
		Entry: &StatementEntry{EntryID: "ST-9", Amount: txn.Amount, Currency: "EUR"},
	}

	for range 2 {
		summary, err := e.svc.ReconcilePendingPayments(context.Background())
		require.NoError(t, err)
		assert.Zero(t, summary.Failed)
	}

	stored := e.payment(t, deposit.ID)
	assert.Equal(t, enums.PaymentStatusRejected, stored.Status)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, ReasonTransactionClosed, *stored.RejectionReason)
	assert.Equal(t, enums.TransactionStatusCancelled, e.status(t, txn.ID))
	assert.EqualValues(t, 1, e.countEvents(t, enums.EventPaymentRejected))
	assert.Zero(t, e.countEvents(t, enums.EventPaymentVerified))
}

func TestReconcileSkipsTransactionPastPayment(t *testing.T) {
	e := newEnv(t)
	txn := e.txn(t, enums.TransactionStatusInspectionScheduled)
	deposit := e.deposit(t, txn, 20*24*time.Hour, nil)

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ReconcileSummary{Checked: 1, Skipped: 1}, summary)
	assert.Equal(t, enums.PaymentStatusSubmitted, e.payment(t, deposit.ID).Status)
	assert.Equal(t, enums.TransactionStatusInspectionScheduled, e.status(t, txn.ID))
}

func TestReconcileSkipsDepositsOutsideLookback(t *testing.T) {
	e := newEnv(t)
	txn := e.txn(t, enums.TransactionStatusPaymentSubmitted)
	stale := e.deposit(t, txn, 40*24*time.Hour, nil)

	summary, err := e.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Equal(t, enums.PaymentStatusSubmitted, e.payment(t, stale.ID).Status)
}
