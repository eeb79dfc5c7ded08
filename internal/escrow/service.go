// Package escrow owns the transaction lifecycle: every status change, fund
// release, refund and the periodic sweeps that drive them.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/directory"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReleaseResult reports what AutoReleaseFunds did. Released is false when the
// transaction was not eligible or had already been released.
type ReleaseResult struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	Released      bool         `json:"released"`
	Reason        string       `json:"reason,omitempty"`
	Distribution  Distribution `json:"distribution"`
	PaymentIDs    []uuid.UUID  `json:"payment_ids,omitempty"`
}

// RefundResult reports a processed refund.
type RefundResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Refunded      bool      `json:"refunded"`
	PaymentID     uuid.UUID `json:"payment_id,omitempty"`
}

// SubmitPaymentInput is the buyer's claim of a bank transfer.
type SubmitPaymentInput struct {
	Amount        decimal.Decimal
	BankReference string
	ProofHash     string
}

type ServiceParams struct {
	DB              txRunner
	Transactions    transactions.Repository
	Payments        ledger.Repository
	Ledger          ledger.Service
	Directory       directory.Repository
	Notifier        notifications.Notifier
	Outbox          emitter
	Policy          Policy
	ReleaseHold     time.Duration
	InspectionGrace time.Duration
	Workers         int
	Location        *time.Location
	Logger          *logger.Logger
	Now             func() time.Time
}

type Service struct {
	db              txRunner
	transactions    transactions.Repository
	payments        ledger.Repository
	ledger          ledger.Service
	directory       directory.Repository
	notifier        notifications.Notifier
	outbox          emitter
	policy          Policy
	releaseHold     time.Duration
	inspectionGrace time.Duration
	workers         int
	loc             *time.Location
	logg            *logger.Logger
	now             func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("db is required")
	case params.Transactions == nil:
		return nil, errors.New("transactions repository is required")
	case params.Payments == nil:
		return nil, errors.New("payments repository is required")
	case params.Ledger == nil:
		return nil, errors.New("ledger service is required")
	case params.Directory == nil:
		return nil, errors.New("directory is required")
	case params.Notifier == nil:
		return nil, errors.New("notifier is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox is required")
	}
	policy := params.Policy
	if policy.ServiceFeeRate.IsZero() && policy.ServiceFeeFloor.IsZero() && policy.DealerRate.IsZero() {
		policy = DefaultPolicy()
	}
	hold := params.ReleaseHold
	if hold <= 0 {
		hold = DefaultReleaseHold
	}
	grace := params.InspectionGrace
	if grace <= 0 {
		grace = 7 * 24 * time.Hour
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
		db:              params.DB,
		transactions:    params.Transactions,
		payments:        params.Payments,
		ledger:          params.Ledger,
		directory:       params.Directory,
		notifier:        params.Notifier,
		outbox:          params.Outbox,
		policy:          policy,
		releaseHold:     hold,
		inspectionGrace: grace,
		workers:         workers,
		loc:             loc,
		logg:            logg,
		now:             now,
	}, nil
}

// Approve moves a screened transaction to awaiting_payment and reserves the vehicle.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.simpleTransition(ctx, id, enums.TransactionStatusAwaitingPayment, "approved", nil,
		func(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
			return s.directory.WithTx(tx).SetVehicleStatus(ctx, txn.VehicleID, enums.VehicleStatusReserved)
		})
}

// Cancel is allowed only before the deposit is verified. The vehicle is
// relisted and any deposit still awaiting reconciliation is rejected.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	updates := map[string]any{"cancelled_at": s.now(), "cancellation_reason": reason}
	return s.simpleTransition(ctx, id, enums.TransactionStatusCancelled, reason, updates,
		func(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
			if err := s.directory.WithTx(tx).SetVehicleStatus(ctx, txn.VehicleID, enums.VehicleStatusActive); err != nil {
				return err
			}
			if err := s.rejectOpenDeposit(ctx, tx, txn.ID); err != nil {
				return err
			}
			s.notifyParties(ctx, tx, txn, enums.NotificationTransactionUpdate, map[string]any{
				"status": enums.TransactionStatusCancelled,
				"reason": reason,
			})
			return nil
		})
}

func (s *Service) rejectOpenDeposit(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error {
	payments := s.payments.WithTx(tx)
	deposit, err := payments.OpenDeposit(ctx, transactionID)
	if repo.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load open deposit: %w", err)
	}
	if deposit.Status != enums.PaymentStatusSubmitted && deposit.Status != enums.PaymentStatusPendingManualReview {
		return nil
	}
	_, err = payments.Transition(ctx, deposit.ID, deposit.Status, enums.PaymentStatusRejected,
		map[string]any{"rejection_reason": "transaction cancelled"})
	return err
}

// SubmitPayment records the buyer's deposit claim and moves the transaction
// to payment_submitted. The claimed amount must match within 0.01.
func (s *Service) SubmitPayment(ctx context.Context, id uuid.UUID, input SubmitPaymentInput) (*models.Payment, error) {
	input.BankReference = strings.TrimSpace(input.BankReference)
	input.ProofHash = strings.TrimSpace(input.ProofHash)
	if input.BankReference == "" && input.ProofHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank reference or proof hash is required")
	}

	var payment *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(txn.Status, enums.TransactionStatusPaymentSubmitted) {
			return stateConflict(txn.Status, enums.TransactionStatusPaymentSubmitted)
		}
		if input.Amount.Sub(txn.Amount).Abs().GreaterThan(amountTolerance) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment amount does not match transaction amount")
		}
		payments := s.payments.WithTx(tx)
		dup, err := payments.VerifiedProofHashExists(ctx, input.ProofHash, uuid.Nil)
		if err != nil {
			return err
		}
		if dup {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment proof already used")
		}

		buyer := txn.BuyerID
		payment = &models.Payment{
			TransactionID: txn.ID,
			PayerID:       &buyer,
			Amount:        input.Amount.Round(2),
			Currency:      txn.Currency,
			Type:          enums.PaymentTypeDeposit,
			Status:        enums.PaymentStatusSubmitted,
			BankReference: optional(input.BankReference),
			ProofHash:     optional(input.ProofHash),
		}
		if err := payments.Create(ctx, payment); err != nil {
			return err
		}
		moved, err := s.move(ctx, tx, txn, enums.TransactionStatusPaymentSubmitted, "deposit submitted", nil)
		if err != nil {
			return err
		}
		if !moved {
			return stateConflict(txn.Status, enums.TransactionStatusPaymentSubmitted)
		}
		return nil
	})
	if err != nil {
		return nil, s.unitError(ctx, id, "submit payment", err)
	}
	return payment, nil
}

// ScheduleInspection books the pre-transfer inspection.
func (s *Service) ScheduleInspection(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if at.IsZero() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "inspection time is required")
	}
	updates := map[string]any{"inspection_scheduled_for": at.UTC(), "inspection_result": enums.InspectionResultPending}
	return s.simpleTransition(ctx, id, enums.TransactionStatusInspectionScheduled, "inspection scheduled", updates, nil)
}

// RecordInspectionResult stores the inspector's verdict. A pass keeps the
// transaction scheduled until ownership transfers; a failure moves it to
// inspection_failed.
func (s *Service) RecordInspectionResult(ctx context.Context, id uuid.UUID, passed bool, reason string) (bool, error) {
	now := s.now()
	if passed {
		var moved bool
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			txn, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if txn.Status != enums.TransactionStatusInspectionScheduled {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no inspection is scheduled")
			}
			moved, err = s.transactions.WithTx(tx).Transition(ctx, id,
				enums.TransactionStatusInspectionScheduled, enums.TransactionStatusInspectionScheduled,
				map[string]any{"inspection_result": enums.InspectionResultPassed, "inspection_completed_at": now})
			return err
		})
		if err != nil {
			return false, s.unitError(ctx, id, "record inspection", err)
		}
		return moved, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	return s.failInspection(ctx, id, reason)
}

func (s *Service) failInspection(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	updates := map[string]any{
		"inspection_result":         enums.InspectionResultFailed,
		"inspection_failure_reason": reason,
		"inspection_completed_at":   s.now(),
	}
	return s.simpleTransition(ctx, id, enums.TransactionStatusInspectionFailed, reason, updates,
		func(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
			s.notifyParties(ctx, tx, txn, enums.NotificationInspectionFailed, map[string]any{"reason": reason})
			return nil
		})
}

// ConfirmOwnershipTransfer records the registration change. A scheduled
// inspection must have passed first.
func (s *Service) ConfirmOwnershipTransfer(ctx context.Context, id uuid.UUID) (bool, error) {
	var moved bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn.Status == enums.TransactionStatusInspectionScheduled && txn.InspectionResult != enums.InspectionResultPassed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "inspection has not passed")
		}
		moved, err = s.move(ctx, tx, txn, enums.TransactionStatusOwnershipTransferred, "ownership transferred",
			map[string]any{"ownership_transferred_at": s.now()})
		return err
	})
	if err != nil {
		return false, s.unitError(ctx, id, "confirm ownership transfer", err)
	}
	return moved, nil
}

// OpenDispute freezes the transaction. Only one dispute may be open at a time.
func (s *Service) OpenDispute(ctx context.Context, id, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || openedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason and opener are required")
	}
	var dispute *models.Dispute
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if openedBy != txn.BuyerID && openedBy != txn.SellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only a party to the transaction may open a dispute")
		}
		txns := s.transactions.WithTx(tx)
		open, err := txns.HasOpenDispute(ctx, txn.ID)
		if err != nil {
			return err
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "a dispute is already open")
		}
		moved, err := s.move(ctx, tx, txn, enums.TransactionStatusDisputed, reason, nil)
		if err != nil {
			return err
		}
		if !moved {
			return stateConflict(txn.Status, enums.TransactionStatusDisputed)
		}
		dispute = &models.Dispute{TransactionID: txn.ID, OpenedBy: openedBy, Status: enums.DisputeStatusOpen, Reason: reason}
		if err := txns.CreateDispute(ctx, dispute); err != nil {
			return err
		}
		txnID := txn.ID
		s.notifier.NotifyAdmins(ctx, tx, enums.NotificationDisputeOpened, notifications.Payload{
			TransactionID: &txnID,
			Data:          map[string]any{"reason": reason, "opened_by": openedBy},
		})
		return nil
	})
	if err != nil {
		return nil, s.unitError(ctx, id, "open dispute", err)
	}
	return dispute, nil
}

// ResolveDispute closes the open dispute. A release outcome moves the
// transaction to resolved, from where ownership transfer resumes; a refund
// outcome returns the full amount to the buyer.
func (s *Service) ResolveDispute(ctx context.Context, id uuid.UUID, outcome enums.DisputeOutcome, resolution string) (bool, error) {
	if !outcome.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "outcome must be release or refund")
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "resolution is required")
	}
	var done bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn.Status != enums.TransactionStatusDisputed {
			return stateConflict(txn.Status, enums.TransactionStatusResolved)
		}
		if _, err := s.transactions.WithTx(tx).ResolveOpenDispute(ctx, txn.ID, resolution, s.now()); err != nil {
			return err
		}
		if outcome == enums.DisputeOutcomeRefund {
			result, err := s.refundTx(ctx, tx, txn, "dispute: "+resolution)
			if err != nil {
				return err
			}
			done = result.Refunded
			return nil
		}
		done, err = s.move(ctx, tx, txn, enums.TransactionStatusResolved, resolution, nil)
		if err != nil {
			return err
		}
		if done {
			s.notifyParties(ctx, tx, txn, enums.NotificationTransactionUpdate, map[string]any{
				"status":     enums.TransactionStatusResolved,
				"resolution": resolution,
			})
		}
		return nil
	})
	if err != nil {
		return false, s.unitError(ctx, id, "resolve dispute", err)
	}
	return done, nil
}

// AutoReleaseFunds pays out an eligible transaction in one unit of work:
// seller payout, service fee and dealer commission legs, the move to
// completed, the vehicle marked sold, and both parties notified. Any failure
// rolls back every write. Calling it again after completion is a no-op.
func (s *Service) AutoReleaseFunds(ctx context.Context, id uuid.UUID) (*ReleaseResult, error) {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	result := &ReleaseResult{TransactionID: id}
	now := s.now()

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn.Status == enums.TransactionStatusCompleted {
			result.Reason = "already_completed"
			return nil
		}
		txns := s.transactions.WithTx(tx)
		open, err := txns.HasOpenDispute(ctx, txn.ID)
		if err != nil {
			return err
		}
		if !canAutoRelease(txn, open, now, s.releaseHold) {
			result.Reason = "not_eligible"
			return nil
		}
		paid, err := s.ledger.HasLeg(ctx, tx, txn.ID, enums.PaymentTypeRelease)
		if err != nil {
			return fmt.Errorf("check release leg: %w", err)
		}
		if paid {
			s.logg.Warn(ctx, "release leg already recorded for unfinished transaction")
			result.Reason = "already_paid"
			return nil
		}

		hasDealer := txn.HasDealer()
		var dealerUser *uuid.UUID
		if hasDealer {
			dealer, err := s.directory.WithTx(tx).GetDealer(ctx, *txn.DealerID)
			if err != nil {
				return fmt.Errorf("load dealer: %w", err)
			}
			dealerUser = &dealer.UserID
		}
		dist := DistributeCommissions(txn.Amount, hasDealer, s.policy)

		moved, err := s.move(ctx, tx, txn, enums.TransactionStatusCompleted, "funds released", map[string]any{
			"completed_at":      now,
			"service_fee":       dist.ServiceFee,
			"dealer_commission": dist.DealerCommission,
		})
		if err != nil {
			return err
		}
		if !moved {
			result.Reason = "status_changed"
			return nil
		}

		seller := txn.SellerID
		var legs []ledger.RecordLegInput
		if dist.SellerPayout.IsPositive() {
			legs = append(legs, ledger.RecordLegInput{
				TransactionID: txn.ID, PayeeID: &seller, Type: enums.PaymentTypeRelease,
				Amount: dist.SellerPayout, Currency: txn.Currency,
			})
		}
		if dist.ServiceFee.IsPositive() {
			legs = append(legs, ledger.RecordLegInput{
				TransactionID: txn.ID, Type: enums.PaymentTypeServiceFee,
				Amount: dist.ServiceFee, Currency: txn.Currency,
			})
		}
		if hasDealer && dist.DealerCommission.IsPositive() {
			legs = append(legs, ledger.RecordLegInput{
				TransactionID: txn.ID, PayeeID: dealerUser, Type: enums.PaymentTypeDealerCommission,
				Amount: dist.DealerCommission, Currency: txn.Currency,
			})
		}
		for _, leg := range legs {
			payment, err := s.ledger.RecordLeg(ctx, tx, leg)
			if err != nil {
				return fmt.Errorf("record %s leg: %w", leg.Type, err)
			}
			result.PaymentIDs = append(result.PaymentIDs, payment.ID)
		}

		if err := s.directory.WithTx(tx).SetVehicleStatus(ctx, txn.VehicleID, enums.VehicleStatusSold); err != nil {
			return fmt.Errorf("mark vehicle sold: %w", err)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFundsReleased,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: payloads.FundsReleasedEvent{
				TransactionID:    txn.ID,
				SellerID:         txn.SellerID,
				SellerAmount:     dist.SellerPayout,
				ServiceFee:       dist.ServiceFee,
				DealerCommission: dist.DealerCommission,
				Currency:         txn.Currency,
				PaymentIDs:       result.PaymentIDs,
			},
		}); err != nil {
			return err
		}
		s.notifyParties(ctx, tx, txn, enums.NotificationFundsReleased, map[string]any{
			"amount":        txn.Amount.StringFixed(2),
			"seller_payout": dist.SellerPayout.StringFixed(2),
			"currency":      txn.Currency,
		})

		result.Released = true
		result.Distribution = dist
		return nil
	})
	if err != nil {
		return nil, s.unitError(ctx, id, "auto release", err)
	}
	if result.Released {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"seller_payout":     result.Distribution.SellerPayout.String(),
			"service_fee":       result.Distribution.ServiceFee.String(),
			"dealer_commission": result.Distribution.DealerCommission.String(),
		}), "funds released")
	}
	return result, nil
}

// ProcessRefund returns the full amount to the buyer. Only payment_verified
// transactions can be refunded this way; disputes refund via ResolveDispute.
func (s *Service) ProcessRefund(ctx context.Context, id uuid.UUID, reason string) (*RefundResult, error) {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}
	var result *RefundResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if txn.Status != enums.TransactionStatusPaymentVerified {
			return stateConflict(txn.Status, enums.TransactionStatusRefunded)
		}
		result, err = s.refundTx(ctx, tx, txn, reason)
		return err
	})
	if err != nil {
		return nil, s.unitError(ctx, id, "process refund", err)
	}
	return result, nil
}

func (s *Service) refundTx(ctx context.Context, tx *gorm.DB, txn *models.Transaction, reason string) (*RefundResult, error) {
	result := &RefundResult{TransactionID: txn.ID}
	moved, err := s.move(ctx, tx, txn, enums.TransactionStatusRefunded, reason, map[string]any{
		"refunded_at":   s.now(),
		"refund_reason": reason,
	})
	if err != nil || !moved {
		return result, err
	}
	buyer := txn.BuyerID
	payment, err := s.ledger.RecordLeg(ctx, tx, ledger.RecordLegInput{
		TransactionID: txn.ID,
		PayeeID:       &buyer,
		Type:          enums.PaymentTypeRefund,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("record refund leg: %w", err)
	}
	if err := s.directory.WithTx(tx).SetVehicleStatus(ctx, txn.VehicleID, enums.VehicleStatusActive); err != nil {
		return nil, fmt.Errorf("relist vehicle: %w", err)
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFundsRefunded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.FundsRefundedEvent{
			TransactionID: txn.ID,
			BuyerID:       txn.BuyerID,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			PaymentID:     payment.ID,
			Reason:        reason,
		},
	}); err != nil {
		return nil, err
	}
	txnID := txn.ID
	s.notifier.Notify(ctx, tx, txn.BuyerID, enums.NotificationRefundProcessed, notifications.Payload{
		TransactionID: &txnID,
		Data:          map[string]any{"amount": txn.Amount.StringFixed(2), "currency": txn.Currency},
	})
	result.Refunded = true
	result.PaymentID = payment.ID
	return result, nil
}

type afterMove func(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error

// simpleTransition loads the transaction, checks the table, moves it and runs
// after inside the same unit of work. Disallowed moves are STATE_CONFLICT; a
// lost race is a no-op.
func (s *Service) simpleTransition(ctx context.Context, id uuid.UUID, to enums.TransactionStatus, reason string, updates map[string]any, after afterMove) (bool, error) {
	var moved bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		moved, err = s.move(ctx, tx, txn, to, reason, updates)
		if err != nil || !moved || after == nil {
			return err
		}
		return after(ctx, tx, txn)
	})
	if err != nil {
		return false, s.unitError(ctx, id, "transition to "+string(to), err)
	}
	return moved, nil
}

// move applies one optimistic transition and emits the state change event.
func (s *Service) move(ctx context.Context, tx *gorm.DB, txn *models.Transaction, to enums.TransactionStatus, reason string, updates map[string]any) (bool, error) {
	if !CanTransition(txn.Status, to) {
		return false, stateConflict(txn.Status, to)
	}
	from := txn.Status
	moved, err := s.transactions.WithTx(tx).Transition(ctx, txn.ID, from, to, updates)
	if err != nil || !moved {
		return false, err
	}
	txn.Status = to
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionStateChange,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.TransactionStateChangedEvent{
			TransactionID: txn.ID,
			From:          from,
			To:            to,
			Reason:        reason,
			ChangedAt:     s.now(),
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.transactions.WithTx(tx).Get(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return txn, nil
}

func (s *Service) notifyParties(ctx context.Context, tx *gorm.DB, txn *models.Transaction, kind enums.NotificationType, data map[string]any) {
	txnID := txn.ID
	for _, userID := range []uuid.UUID{txn.BuyerID, txn.SellerID} {
		s.notifier.Notify(ctx, tx, userID, kind, notifications.Payload{TransactionID: &txnID, Data: data})
	}
}

// unitError passes typed errors through and wraps anything else as a rolled
// back unit of work.
func (s *Service) unitError(ctx context.Context, id uuid.UUID, op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": id.String(),
		"operation":      op,
		"error_chain":    pkgerrors.Dump(err),
	}), op+" rolled back", err)
	return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, op+" failed")
}

func stateConflict(from, to enums.TransactionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move transaction from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
