package escrow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/notifications"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

const (
	paymentReminderAfter = 48 * time.Hour
	paymentReminderUntil = 7 * 24 * time.Hour
	depositReviewAfter   = 24 * time.Hour
)

type InspectionSweepResult struct {
	Reminded   int `json:"reminded"`
	AutoFailed int `json:"auto_failed"`
}

type ReminderSweepResult struct {
	Reminded        int `json:"reminded"`
	FlaggedDeposits int `json:"flagged_deposits"`
}

type ReleaseSweepResult struct {
	Candidates int `json:"candidates"`
	Released   int `json:"released"`
	Failed     int `json:"failed"`
}

// ProcessScheduledInspections reminds both parties of inspections booked for
// today and fails inspections left pending past the grace period.
func (s *Service) ProcessScheduledInspections(ctx context.Context) (InspectionSweepResult, error) {
	var result InspectionSweepResult
	now := s.now()
	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	today, err := s.transactions.ListInspectionsScheduledBetween(ctx, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return result, err
	}
	var errs error
	for i := range today {
		txn := &today[i]
		if txn.InspectionResult != enums.InspectionResultPending {
			continue
		}
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			s.notifyParties(ctx, tx, txn, enums.NotificationInspectionReminder, map[string]any{
				"scheduled_for": txn.InspectionScheduledFor,
			})
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		result.Reminded++
	}

	overdue, err := s.transactions.ListInspectionsScheduledBetween(ctx, time.Time{}, now.Add(-s.inspectionGrace))
	if err != nil {
		return result, multierr.Append(errs, err)
	}
	for _, txn := range overdue {
		if txn.InspectionResult != enums.InspectionResultPending {
			continue
		}
		moved, err := s.failInspection(ctx, txn.ID, "inspection not completed within grace period")
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if moved {
			result.AutoFailed++
		}
	}
	return result, errs
}

// SendPaymentReminders nudges buyers who were approved 48 hours to 7 days ago
// and have not paid, then flags deposits stuck in submitted for more than a
// day for manual review.
func (s *Service) SendPaymentReminders(ctx context.Context) (ReminderSweepResult, error) {
	var result ReminderSweepResult
	now := s.now()

	waiting, err := s.transactions.ListAwaitingPaymentCreatedBetween(ctx, now.Add(-paymentReminderUntil), now.Add(-paymentReminderAfter))
	if err != nil {
		return result, err
	}
	var errs error
	for i := range waiting {
		txn := &waiting[i]
		txnID := txn.ID
		s.notifier.Notify(ctx, nil, txn.BuyerID, enums.NotificationPaymentReminder, notifications.Payload{
			TransactionID: &txnID,
			Data: map[string]any{
				"amount":            txn.Amount.StringFixed(2),
				"currency":          txn.Currency,
				"payment_reference": txn.PaymentReference,
			},
		})
		result.Reminded++
	}

	stale, err := s.payments.ListStaleSubmittedDeposits(ctx, now.Add(-depositReviewAfter))
	if err != nil {
		return result, multierr.Append(errs, err)
	}
	for _, payment := range stale {
		payment := payment
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			flagged, err := s.payments.WithTx(tx).FlagForReview(ctx, payment.ID)
			if err != nil || !flagged {
				return err
			}
			result.FlaggedDeposits++
			txnID := payment.TransactionID
			s.notifier.NotifyAdmins(ctx, tx, enums.NotificationPaymentReview, notifications.Payload{
				TransactionID: &txnID,
				Data: map[string]any{
					"payment_id": payment.ID,
					"amount":     payment.Amount.StringFixed(2),
				},
			})
			return nil
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return result, errs
}

// ReleaseEligible runs AutoReleaseFunds for every candidate past the hold
// period. Each release is its own unit of work; one failure does not stop the
// rest.
func (s *Service) ReleaseEligible(ctx context.Context) (ReleaseSweepResult, error) {
	var result ReleaseSweepResult
	candidates, err := s.transactions.ListAutoReleaseCandidates(ctx, s.now().Add(-s.releaseHold))
	if err != nil {
		return result, err
	}
	result.Candidates = len(candidates)

	var (
		mu   sync.Mutex
		errs error
	)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, txn := range candidates {
		id := txn.ID
		group.Go(func() error {
			released, err := s.AutoReleaseFunds(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, err)
				return nil
			}
			if released.Released {
				result.Released++
			}
			return nil
		})
	}
	_ = group.Wait()
	return result, errs
}
