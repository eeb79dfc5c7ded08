// Package reconciliation ties bank statement credits to deposits: the
// periodic sweep over pending deposits, the inbound statement webhook, and
// advisory pattern detection.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/escrow"
	"github.com/angelmondragon/autoescrow-backend/internal/ledger"
	"github.com/angelmondragon/autoescrow-backend/internal/notifications"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox/payloads"
)

var amountTolerance = decimal.RequireFromString("0.01")

// Reasons recorded on unmatched or rejected deposits.
const (
	ReasonNoStatement        = "no matching bank statement within decision window"
	ReasonNoTransaction      = "no_matching_transaction"
	ReasonAmountMismatch     = "amount_mismatch"
	ReasonCurrencyMismatch   = "currency_mismatch"
	ReasonDuplicateReference = "duplicate_reference"
	ReasonDuplicateProof     = "duplicate_proof"
	ReasonDuplicateEntry     = "duplicate_entry"
	ReasonTransactionClosed  = "transaction closed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outcome is what the sweep did with one deposit.
type Outcome string

const (
	OutcomeVerified     Outcome = "verified"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeRejected     Outcome = "rejected"
	OutcomeManualReview Outcome = "manual_review"
	OutcomeSkipped      Outcome = "skipped"
)

// ReconcileSummary counts sweep outcomes.
type ReconcileSummary struct {
	Checked      int `json:"checked"`
	Verified     int `json:"verified"`
	Duplicates   int `json:"duplicates"`
	Rejected     int `json:"rejected"`
	ManualReview int `json:"manual_review"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// MatchResult is the webhook response.
type MatchResult struct {
	Matched       bool       `json:"matched"`
	Reason        string     `json:"reason,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"`
}

type ServiceParams struct {
	DB           txRunner
	Transactions transactions.Repository
	Payments     ledger.Repository
	Searcher     StatementSearcher
	Notifier     notifications.Notifier
	Outbox       emitter
	Audit        audit.Recorder
	Lookback     time.Duration
	RejectAfter  time.Duration
	Workers      int
	Location     *time.Location
	Logger       *logger.Logger
	Now          func() time.Time
}

type Service struct {
	db           txRunner
	transactions transactions.Repository
	payments     ledger.Repository
	searcher     StatementSearcher
	notifier     notifications.Notifier
	outbox       emitter
	audit        audit.Recorder
	lookback     time.Duration
	rejectAfter  time.Duration
	workers      int
	loc          *time.Location
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("db is required")
	case params.Transactions == nil:
		return nil, errors.New("transactions repository is required")
	case params.Payments == nil:
		return nil, errors.New("payments repository is required")
	case params.Notifier == nil:
		return nil, errors.New("notifier is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox is required")
	case params.Audit == nil:
		return nil, errors.New("audit recorder is required")
	}
	searcher := params.Searcher
	if searcher == nil {
		searcher = ManualSearcher{}
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	rejectAfter := params.RejectAfter
	if rejectAfter <= 0 {
		rejectAfter = 14 * 24 * time.Hour
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 4
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:           params.DB,
		transactions: params.Transactions,
		payments:     params.Payments,
		searcher:     searcher,
		notifier:     params.Notifier,
		outbox:       params.Outbox,
		audit:        params.Audit,
		lookback:     lookback,
		rejectAfter:  rejectAfter,
		workers:      workers,
		loc:          loc,
		logg:         logg,
		now:          now,
	}, nil
}

// ReconcilePendingPayments works through every open deposit younger than the
// lookback window. Deposits are independent; one failure does not stop the
// others.
func (s *Service) ReconcilePendingPayments(ctx context.Context) (*ReconcileSummary, error) {
	now := s.now()
	pending, err := s.payments.ListPendingDeposits(ctx, now.Add(-s.lookback))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending deposits")
	}

	summary := &ReconcileSummary{Checked: len(pending)}
	var (
		mu   sync.Mutex
		errs error
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for i := range pending {
		payment := pending[i]
		group.Go(func() error {
			outcome, err := s.reconcileOne(gctx, &payment, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
				return nil
			}
			switch outcome {
			case OutcomeVerified:
				summary.Verified++
			case OutcomeDuplicate:
				summary.Duplicates++
			case OutcomeRejected:
				summary.Rejected++
			case OutcomeManualReview:
				summary.ManualReview++
			case OutcomeSkipped:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = group.Wait()

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked":       summary.Checked,
		"verified":      summary.Verified,
		"duplicates":    summary.Duplicates,
		"rejected":      summary.Rejected,
		"manual_review": summary.ManualReview,
		"skipped":       summary.Skipped,
		"failed":        summary.Failed,
	}), "payment reconciliation finished")
	return summary, errs
}

func (s *Service) reconcileOne(ctx context.Context, payment *models.Payment, now time.Time) (Outcome, error) {
	ctx = s.logg.WithPaymentID(ctx, payment.ID.String())
	txn, err := s.transactions.Get(ctx, payment.TransactionID)
	if err != nil {
		return "", fmt.Errorf("load transaction: %w", err)
	}

	switch {
	case txn.IsClosed():
		if err := s.reject(ctx, txn, payment, ReasonTransactionClosed, now); err != nil {
			return "", err
		}
		return OutcomeRejected, nil
	case !escrow.CanTransition(txn.Status, enums.TransactionStatusPaymentVerified):
		s.logg.Warn(s.logg.WithField(ctx, "transaction_status", txn.Status.String()), "open deposit on transaction past payment; skipped")
		return OutcomeSkipped, nil
	}

	if result, ok := s.search(ctx, txn, payment); ok {
		entry := result.Entry
		if err := s.verify(ctx, txn, payment, entry.EntryID, result.Raw, now); err != nil {
			return "", err
		}
		return OutcomeVerified, nil
	}

	if reason, err := s.duplicateReason(ctx, s.payments, payment); err != nil {
		return "", err
	} else if reason != "" {
		err := s.audit.Record(ctx, nil, audit.Entry{
			EntityType: enums.AuditEntityPayment,
			EntityID:   payment.ID,
			CheckType:  enums.AuditCheckReconciliation,
			Result:     enums.AuditResultFlagged,
			Evidence:   map[string]any{"reason": reason, "transaction_id": payment.TransactionID},
			At:         now,
		})
		if err != nil {
			return "", err
		}
		s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "duplicate deposit evidence")
		return OutcomeDuplicate, nil
	}

	if now.Sub(payment.CreatedAt) > s.rejectAfter {
		if err := s.reject(ctx, txn, payment, ReasonNoStatement, now); err != nil {
			return "", err
		}
		return OutcomeRejected, nil
	}

	if payment.Status == enums.PaymentStatusSubmitted {
		if _, err := s.payments.Transition(ctx, payment.ID, enums.PaymentStatusSubmitted, enums.PaymentStatusPendingManualReview, nil); err != nil {
			return "", err
		}
	}
	return OutcomeManualReview, nil
}

// search treats provider failures as not found.
func (s *Service) search(ctx context.Context, txn *models.Transaction, payment *models.Payment) (SearchResult, bool) {
	result, err := s.searcher.Search(ctx, StatementQuery{
		Reference: txn.PaymentReference,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		From:      payment.CreatedAt.AddDate(0, 0, -1),
	})
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"provider": s.searcher.Name(),
			"error":    err.Error(),
		}), "statement search failed")
		return SearchResult{}, false
	}
	if !result.Found || result.Entry == nil {
		return SearchResult{}, false
	}
	if result.Entry.Amount.Sub(payment.Amount).Abs().GreaterThan(amountTolerance) ||
		(result.Entry.Currency != "" && result.Entry.Currency != payment.Currency) {
		s.logg.Warn(ctx, "statement entry does not match deposit amount")
		return SearchResult{}, false
	}
	return result, true
}

func (s *Service) duplicateReason(ctx context.Context, payments ledger.Repository, payment *models.Payment) (string, error) {
	if payment.BankReference != nil {
		dup, err := payments.VerifiedBankReferenceExists(ctx, *payment.BankReference, payment.ID)
		if err != nil {
			return "", err
		}
		if dup {
			return ReasonDuplicateReference, nil
		}
	}
	if payment.ProofHash != nil {
		dup, err := payments.VerifiedProofHashExists(ctx, *payment.ProofHash, payment.ID)
		if err != nil {
			return "", err
		}
		if dup {
			return ReasonDuplicateProof, nil
		}
	}
	return "", nil
}

// verify marks the deposit verified and moves the transaction to
// payment_verified in one unit of work.
func (s *Service) verify(ctx context.Context, txn *models.Transaction, payment *models.Payment, entryID string, raw json.RawMessage, now time.Time) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"verified_at": now}
		if len(raw) > 0 {
			updates["bank_api_response"] = raw
		}
		if payment.BankReference == nil && entryID != "" {
			updates["bank_reference"] = entryID
		}
		moved, err := s.payments.WithTx(tx).Transition(ctx, payment.ID, payment.Status, enums.PaymentStatusVerified, updates)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit changed during reconciliation")
		}
		payment.Status = enums.PaymentStatusVerified
		return s.verifyTransaction(ctx, tx, txn, payment, now)
	})
}

func (s *Service) verifyTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction, payment *models.Payment, now time.Time) error {
	if !escrow.CanTransition(txn.Status, enums.TransactionStatusPaymentVerified) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transaction is %s", txn.Status))
	}
	from := txn.Status
	moved, err := s.transactions.WithTx(tx).Transition(ctx, txn.ID, from, enums.TransactionStatusPaymentVerified,
		map[string]any{"payment_verified_at": now})
	if err != nil {
		return err
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction changed during reconciliation")
	}
	events := []outbox.DomainEvent{
		{
			EventType:     enums.EventTransactionStateChange,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: payloads.TransactionStateChangedEvent{
				TransactionID: txn.ID,
				From:          from,
				To:            enums.TransactionStatusPaymentVerified,
				Reason:        "deposit matched bank statement",
				ChangedAt:     now,
			},
		},
		{
			EventType:     enums.EventPaymentVerified,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentReconciledEvent{
				PaymentID:     payment.ID,
				TransactionID: txn.ID,
				Status:        enums.PaymentStatusVerified,
			},
		},
	}
	for _, event := range events {
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
	}
	txnID := txn.ID
	for _, userID := range []uuid.UUID{txn.BuyerID, txn.SellerID} {
		s.notifier.Notify(ctx, tx, userID, enums.NotificationPaymentVerified, notifications.Payload{
			TransactionID: &txnID,
			Data:          map[string]any{"amount": payment.Amount.StringFixed(2), "currency": payment.Currency},
		})
	}
	return s.audit.Record(ctx, tx, audit.Entry{
		EntityType: enums.AuditEntityPayment,
		EntityID:   payment.ID,
		CheckType:  enums.AuditCheckReconciliation,
		Result:     enums.AuditResultPassed,
		Evidence:   map[string]any{"transaction_id": txn.ID, "provider": s.searcher.Name()},
		At:         now,
	})
}

func (s *Service) reject(ctx context.Context, txn *models.Transaction, payment *models.Payment, reason string, now time.Time) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.payments.WithTx(tx).Transition(ctx, payment.ID, payment.Status, enums.PaymentStatusRejected,
			map[string]any{"rejection_reason": reason})
		if err != nil || !moved {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRejected,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentReconciledEvent{
				PaymentID:     payment.ID,
				TransactionID: txn.ID,
				Status:        enums.PaymentStatusRejected,
				Reason:        reason,
			},
		}); err != nil {
			return err
		}
		txnID := txn.ID
		s.notifier.Notify(ctx, tx, txn.BuyerID, enums.NotificationPaymentRejected, notifications.Payload{
			TransactionID: &txnID,
			Data:          map[string]any{"reason": reason},
		})
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AuditEntityPayment,
			EntityID:   payment.ID,
			CheckType:  enums.AuditCheckReconciliation,
			Result:     enums.AuditResultFailed,
			Evidence:   map[string]any{"reason": reason, "transaction_id": txn.ID},
			At:         now,
		})
	})
}

// findByReference prefers a transaction still awaiting payment and falls back
// to one whose deposit was already claimed by the buyer.
func (s *Service) findByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	for _, status := range []enums.TransactionStatus{
		enums.TransactionStatusAwaitingPayment,
		enums.TransactionStatusPaymentSubmitted,
	} {
		txn, err := s.transactions.GetByReference(ctx, reference, status)
		if err == nil {
			return txn, nil
		}
		if !repo.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}
