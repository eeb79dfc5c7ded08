package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/autoescrow-backend/internal/escrow"
	"github.com/angelmondragon/autoescrow-backend/internal/reconciliation"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

// Job names double as metric labels.
const (
	JobPaymentReconciliation = "payment-reconciliation"
	JobEscrowAutoRelease     = "escrow-auto-release"
	JobInspectionSweep       = "inspection-sweep"
	JobPaymentReminders      = "payment-reminders"
	JobSuspiciousPatterns    = "suspicious-patterns"
	JobOutboxRetention       = "outbox-retention"
)

type reconciler interface {
	ReconcilePendingPayments(ctx context.Context) (*reconciliation.ReconcileSummary, error)
}

type patternDetector interface {
	DetectSuspiciousPatterns(ctx context.Context, since time.Time) ([]reconciliation.Alert, error)
	RecordAlerts(ctx context.Context, alerts []reconciliation.Alert) error
}

type escrowSweeper interface {
	ReleaseEligible(ctx context.Context) (escrow.ReleaseSweepResult, error)
	ProcessScheduledInspections(ctx context.Context) (escrow.InspectionSweepResult, error)
	SendPaymentReminders(ctx context.Context) (escrow.ReminderSweepResult, error)
}

type reconciliationJob struct {
	logg *logger.Logger
	svc  reconciler
}

func NewReconciliationJob(logg *logger.Logger, svc reconciler) (Job, error) {
	if logg == nil || svc == nil {
		return nil, fmt.Errorf("logger and reconciliation service required")
	}
	return &reconciliationJob{logg: logg, svc: svc}, nil
}

func (j *reconciliationJob) Name() string { return JobPaymentReconciliation }

func (j *reconciliationJob) Run(ctx context.Context) error {
	summary, err := j.svc.ReconcilePendingPayments(ctx)
	if summary != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"checked":  summary.Checked,
			"verified": summary.Verified,
			"rejected": summary.Rejected,
			"failed":   summary.Failed,
		}), "reconciliation summary")
	}
	return err
}

type autoReleaseJob struct {
	logg *logger.Logger
	svc  escrowSweeper
}

func NewAutoReleaseJob(logg *logger.Logger, svc escrowSweeper) (Job, error) {
	if logg == nil || svc == nil {
		return nil, fmt.Errorf("logger and escrow service required")
	}
	return &autoReleaseJob{logg: logg, svc: svc}, nil
}

func (j *autoReleaseJob) Name() string { return JobEscrowAutoRelease }

func (j *autoReleaseJob) Run(ctx context.Context) error {
	result, err := j.svc.ReleaseEligible(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": result.Candidates,
		"released":   result.Released,
		"failed":     result.Failed,
	}), "auto release summary")
	return err
}

type inspectionJob struct {
	logg *logger.Logger
	svc  escrowSweeper
}

func NewInspectionJob(logg *logger.Logger, svc escrowSweeper) (Job, error) {
	if logg == nil || svc == nil {
		return nil, fmt.Errorf("logger and escrow service required")
	}
	return &inspectionJob{logg: logg, svc: svc}, nil
}

func (j *inspectionJob) Name() string { return JobInspectionSweep }

func (j *inspectionJob) Run(ctx context.Context) error {
	result, err := j.svc.ProcessScheduledInspections(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"reminded":    result.Reminded,
		"auto_failed": result.AutoFailed,
	}), "inspection sweep summary")
	return err
}

type reminderJob struct {
	logg *logger.Logger
	svc  escrowSweeper
}

func NewReminderJob(logg *logger.Logger, svc escrowSweeper) (Job, error) {
	if logg == nil || svc == nil {
		return nil, fmt.Errorf("logger and escrow service required")
	}
	return &reminderJob{logg: logg, svc: svc}, nil
}

func (j *reminderJob) Name() string { return JobPaymentReminders }

func (j *reminderJob) Run(ctx context.Context) error {
	result, err := j.svc.SendPaymentReminders(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"reminded":         result.Reminded,
		"flagged_deposits": result.FlaggedDeposits,
	}), "payment reminder summary")
	return err
}

// patternJob scans deposits created within the last window. Keep the window
// equal to the schedule period or alerts are recorded twice.
type patternJob struct {
	logg   *logger.Logger
	svc    patternDetector
	window time.Duration
	now    func() time.Time
}

func NewPatternJob(logg *logger.Logger, svc patternDetector, window time.Duration) (Job, error) {
	if logg == nil || svc == nil {
		return nil, fmt.Errorf("logger and reconciliation service required")
	}
	if window <= 0 {
		window = time.Hour
	}
	return &patternJob{logg: logg, svc: svc, window: window, now: time.Now}, nil
}

func (j *patternJob) Name() string { return JobSuspiciousPatterns }

func (j *patternJob) Run(ctx context.Context) error {
	alerts, err := j.svc.DetectSuspiciousPatterns(ctx, j.now().UTC().Add(-j.window))
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}
	bySeverity := map[reconciliation.Severity]int{}
	for _, a := range alerts {
		bySeverity[a.Severity]++
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"alerts":   len(alerts),
		"high":     bySeverity[reconciliation.SeverityHigh],
		"medium":   bySeverity[reconciliation.SeverityMedium],
		"low":      bySeverity[reconciliation.SeverityLow],
		"window_h": j.window.Hours(),
	}), "suspicious payment patterns detected")
	return j.svc.RecordAlerts(ctx, alerts)
}
