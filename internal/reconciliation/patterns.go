package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
)

// Pattern names.
const (
	PatternReferenceReuse = "reference_reuse"
	PatternRoundAmount    = "round_amount"
	PatternOffHours       = "off_hours_submission"
)

// Severity of an advisory alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	referenceWindow   = 6 * time.Hour
	referenceMaxCount = 3
	businessDayStart  = 6
	businessDayEnd    = 22
)

var (
	roundStep      = decimal.NewFromInt(5000)
	roundThreshold = decimal.NewFromInt(10000)
)

// Alert is advisory; nothing is blocked because of it.
type Alert struct {
	Pattern       string      `json:"pattern"`
	Severity      Severity    `json:"severity"`
	PaymentIDs    []uuid.UUID `json:"payment_ids"`
	BankReference string      `json:"bank_reference,omitempty"`
	Detail        string      `json:"detail"`
}

// DetectSuspiciousPatterns reports alerts for deposits created since the
// given time. Reference reuse also counts earlier deposits inside the six hour
// window, but only fires when the window ends at a deposit created since then,
// so consecutive scans do not repeat an alert.
func (s *Service) DetectSuspiciousPatterns(ctx context.Context, since time.Time) ([]Alert, error) {
	deposits, err := s.payments.ListDepositsSince(ctx, since.Add(-referenceWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deposits")
	}
	return detect(deposits, since, s.loc), nil
}

func detect(deposits []models.Payment, since time.Time, loc *time.Location) []Alert {
	alerts := referenceReuse(deposits, since)
	for _, p := range deposits {
		if p.CreatedAt.Before(since) {
			continue
		}
		if p.Status == enums.PaymentStatusSubmitted && p.Amount.GreaterThan(roundThreshold) && p.Amount.Mod(roundStep).IsZero() {
			alerts = append(alerts, Alert{
				Pattern:    PatternRoundAmount,
				Severity:   SeverityMedium,
				PaymentIDs: []uuid.UUID{p.ID},
				Detail:     "round amount " + p.Amount.StringFixed(2),
			})
		}
		hour := p.CreatedAt.In(loc).Hour()
		if hour < businessDayStart || hour >= businessDayEnd {
			alerts = append(alerts, Alert{
				Pattern:    PatternOffHours,
				Severity:   SeverityLow,
				PaymentIDs: []uuid.UUID{p.ID},
				Detail:     "submitted at " + p.CreatedAt.In(loc).Format("15:04"),
			})
		}
	}
	return alerts
}

// referenceReuse raises one alert per bank reference seen more than three
// times inside any six hour window ending at or after since.
func referenceReuse(deposits []models.Payment, since time.Time) []Alert {
	byRef := map[string][]models.Payment{}
	var refs []string
	for _, p := range deposits {
		if p.BankReference == nil || *p.BankReference == "" {
			continue
		}
		ref := *p.BankReference
		if _, seen := byRef[ref]; !seen {
			refs = append(refs, ref)
		}
		byRef[ref] = append(byRef[ref], p)
	}

	var alerts []Alert
	for _, ref := range refs {
		group := byRef[ref]
		if len(group) <= referenceMaxCount {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
		start := 0
		for end := range group {
			for group[end].CreatedAt.Sub(group[start].CreatedAt) > referenceWindow {
				start++
			}
			if end-start+1 > referenceMaxCount && !group[end].CreatedAt.Before(since) {
				ids := make([]uuid.UUID, 0, len(group))
				for _, p := range group {
					ids = append(ids, p.ID)
				}
				alerts = append(alerts, Alert{
					Pattern:       PatternReferenceReuse,
					Severity:      SeverityHigh,
					PaymentIDs:    ids,
					BankReference: ref,
					Detail:        "bank reference used more than 3 times within 6 hours",
				})
				break
			}
		}
	}
	return alerts
}

// RecordAlerts appends each alert to the audit trail of its first payment.
func (s *Service) RecordAlerts(ctx context.Context, alerts []Alert) error {
	now := s.now()
	var errs error
	for _, alert := range alerts {
		if len(alert.PaymentIDs) == 0 {
			continue
		}
		errs = multierr.Append(errs, s.audit.Record(ctx, nil, audit.Entry{
			EntityType: enums.AuditEntityPayment,
			EntityID:   alert.PaymentIDs[0],
			CheckType:  enums.AuditCheckSuspiciousPattern,
			Result:     enums.AuditResultFlagged,
			Evidence:   alert,
			At:         now,
		}))
	}
	return errs
}
