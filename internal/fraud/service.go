// Package fraud scores transactions for fraud risk and decides hard blocks
// against the buyer blacklist and the stolen-vehicle registries.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/internal/notifications"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/cache"
	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

// Block reasons.
const (
	ReasonBuyerBlacklisted = "buyer_blacklisted"
	ReasonStolenVehicle    = "stolen_vehicle"
)

// BlockDecision is the outcome of the hard-block check. Degraded means at
// least one registry could not be asked and no other registry reported a hit.
type BlockDecision struct {
	Blocked            bool     `json:"blocked"`
	Reasons            []string `json:"reasons"`
	StolenSource       string   `json:"stolen_source,omitempty"`
	Degraded           bool     `json:"degraded"`
	DegradedRegistries []string `json:"degraded_registries,omitempty"`
}

type vinCheck struct {
	Stolen bool   `json:"stolen"`
	Source string `json:"source,omitempty"`
}

type degradedError struct {
	registries []string
}

func (e *degradedError) Error() string {
	return "registries unavailable: " + strings.Join(e.registries, ",")
}

type ServiceParams struct {
	Users        directory.Repository
	Transactions transactions.Repository
	Repo         Repository
	Registries   []VINRegistry
	Notifier     notifications.Notifier
	Audit        audit.Recorder
	Cache        cache.Store
	CacheKey     func(scope, id string) string
	Risk         config.RiskConfig
	Weights      Weights
	Location     *time.Location
	Logger       *logger.Logger
	Metrics      *metrics.DecisionMetrics
	Now          func() time.Time
}

type Service struct {
	users        directory.Repository
	transactions transactions.Repository
	repo         Repository
	registries   []VINRegistry
	notifier     notifications.Notifier
	audit        audit.Recorder
	weights      Weights
	yearRange    int
	loc          *time.Location
	logg         *logger.Logger
	metrics      *metrics.DecisionMetrics
	now          func() time.Time

	blacklist *cache.Lookup[bool]
	stolen    *cache.Lookup[vinCheck]
	devices   *cache.Lookup[DeviceSignal]
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Users == nil:
		return nil, errors.New("users repository is required")
	case params.Transactions == nil:
		return nil, errors.New("transactions repository is required")
	case params.Repo == nil:
		return nil, errors.New("fraud repository is required")
	case len(params.Registries) == 0:
		return nil, errors.New("at least one vin registry is required")
	case params.Notifier == nil:
		return nil, errors.New("notifier is required")
	case params.Audit == nil:
		return nil, errors.New("audit recorder is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	keyFn := params.CacheKey
	if keyFn == nil {
		keyFn = func(scope, id string) string { return "cache:" + scope + ":" + id }
	}
	scoped := func(scope string) func(string) string {
		return func(id string) string { return keyFn(scope, id) }
	}
	return &Service{
		users:        params.Users,
		transactions: params.Transactions,
		repo:         params.Repo,
		registries:   params.Registries,
		notifier:     params.Notifier,
		audit:        params.Audit,
		weights:      params.Weights,
		yearRange:    params.Risk.ComparableYearRange,
		loc:          loc,
		logg:         logg,
		metrics:      params.Metrics,
		now:          now,
		blacklist:    cache.NewLookup[bool](params.Cache, scoped("blacklist"), params.Risk.BlacklistTTL, logg),
		stolen:       cache.NewLookup[vinCheck](params.Cache, scoped("stolen_vin"), params.Risk.StolenVehicleTTL, logg),
		devices:      cache.NewLookup[DeviceSignal](params.Cache, scoped("device"), params.Risk.FingerprintTTL, logg),
	}, nil
}

// Assess scores txn and appends the breakdown to the audit log. payment may be
// nil when scoring before a deposit exists.
func (s *Service) Assess(ctx context.Context, txn *models.Transaction, payment *models.Payment) (*Assessment, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	now := s.now()

	signals, err := s.gatherSignals(ctx, txn, now)
	if err != nil {
		return nil, err
	}
	assessment := Score(signals, now.In(s.loc), s.weights)
	s.metrics.ObserveFraudScore(assessment.Score)

	result := enums.AuditResultPassed
	switch {
	case assessment.Action == enums.RiskActionBlock:
		result = enums.AuditResultFailed
	case assessment.Action != enums.RiskActionAutoApprove:
		result = enums.AuditResultFlagged
	}
	evidence := map[string]any{"assessment": assessment}
	if payment != nil {
		evidence["payment_id"] = payment.ID
	}
	if err := s.audit.Record(ctx, nil, audit.Entry{
		EntityType: enums.AuditEntityTransaction,
		EntityID:   txn.ID,
		CheckType:  enums.AuditCheckFraudRisk,
		Result:     result,
		RiskLevel:  audit.Ptr(assessment.Level),
		Evidence:   evidence,
		At:         now,
	}); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"fraud_score": assessment.Score,
		"risk_level":  assessment.Level,
		"action":      assessment.Action,
	}), "fraud assessment completed")
	return &assessment, nil
}

func (s *Service) gatherSignals(ctx context.Context, txn *models.Transaction, now time.Time) (Signals, error) {
	var sig Signals
	sig.Amount = txn.Amount

	buyer, err := s.users.GetUser(ctx, txn.BuyerID)
	if err != nil {
		return sig, lookupError(err, "buyer")
	}
	seller, err := s.users.GetUser(ctx, txn.SellerID)
	if err != nil {
		return sig, lookupError(err, "seller")
	}
	vehicle, err := s.users.GetVehicle(ctx, txn.VehicleID)
	if err != nil {
		return sig, lookupError(err, "vehicle")
	}

	sig.BuyerCreatedAt = buyer.CreatedAt
	sig.BuyerKYCVerified = buyer.KYCStatus == enums.KYCStatusVerified
	sig.BuyerCountry = buyer.Country
	sig.SellerCountry = seller.Country
	sig.SellerCreatedAt = seller.CreatedAt
	sig.VehicleYear = vehicle.Year

	steps := []struct {
		name string
		run  func() error
	}{
		{"completed count", func() (err error) {
			sig.BuyerCompletedCount, err = s.transactions.CountForBuyerByStatus(ctx, buyer.ID, enums.TransactionStatusCompleted)
			return err
		}},
		{"failed count", func() (err error) {
			sig.BuyerFailedCount, err = s.transactions.CountForBuyerByStatus(ctx, buyer.ID,
				enums.TransactionStatusCancelled, enums.TransactionStatusRefunded)
			return err
		}},
		{"buyer velocity", func() (err error) {
			sig.BuyerTxns24h, err = s.transactions.CountForBuyerSince(ctx, buyer.ID, now.Add(-24*time.Hour), txn.ID)
			return err
		}},
		{"pair velocity", func() (err error) {
			sig.PairTxns48h, err = s.transactions.CountForPairSince(ctx, buyer.ID, seller.ID, now.Add(-48*time.Hour), txn.ID)
			return err
		}},
		{"seller stats", func() (err error) {
			sig.Seller, err = s.transactions.SellerStats(ctx, seller.ID)
			return err
		}},
		{"comparable price", func() (err error) {
			sig.ComparableAvg, err = s.repo.ComparableAveragePrice(ctx, vehicle, s.yearRange)
			return err
		}},
		{"device signal", func() (err error) {
			sig.Device, err = s.devices.GetOrLoad(ctx, buyer.ID.String(), func(ctx context.Context) (DeviceSignal, error) {
				return s.repo.DeviceSignal(ctx, buyer.ID)
			})
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return sig, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+step.name)
		}
	}
	if sig.ComparableAvg.IsNegative() {
		sig.ComparableAvg = decimal.Zero
	}
	return sig, nil
}

// ShouldBlockTransaction checks the buyer blacklist and every VIN registry.
// A stolen hit raises an authority alert to all admins when it comes from the
// registries; hits served from cache were already alerted.
func (s *Service) ShouldBlockTransaction(ctx context.Context, txn *models.Transaction) (*BlockDecision, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	decision := &BlockDecision{Reasons: []string{}}

	blacklisted, err := s.blacklist.GetOrLoad(ctx, txn.BuyerID.String(), func(ctx context.Context) (bool, error) {
		return s.repo.IsBlacklisted(ctx, txn.BuyerID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "blacklist lookup")
	}
	if blacklisted {
		decision.Blocked = true
		decision.Reasons = append(decision.Reasons, ReasonBuyerBlacklisted)
	}

	vehicle, err := s.users.GetVehicle(ctx, txn.VehicleID)
	if err != nil {
		return nil, lookupError(err, "vehicle")
	}
	vin := strings.ToUpper(strings.TrimSpace(vehicle.VIN))
	fresh := false
	check, err := s.stolen.GetOrLoad(ctx, vin, func(ctx context.Context) (vinCheck, error) {
		fresh = true
		return s.checkRegistries(ctx, vin)
	})
	var degraded *degradedError
	switch {
	case errors.As(err, &degraded):
		decision.Degraded = true
		decision.DegradedRegistries = degraded.registries
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stolen vehicle lookup")
	}
	if check.Stolen {
		decision.Blocked = true
		decision.StolenSource = check.Source
		decision.Reasons = append(decision.Reasons, ReasonStolenVehicle)
		if fresh {
			s.raiseAuthorityAlert(ctx, txn, vehicle, check.Source)
		}
	}

	result := enums.AuditResultPassed
	switch {
	case decision.Blocked:
		result = enums.AuditResultFailed
	case decision.Degraded:
		result = enums.AuditResultFlagged
	}
	if err := s.audit.Record(ctx, nil, audit.Entry{
		EntityType: enums.AuditEntityTransaction,
		EntityID:   txn.ID,
		CheckType:  enums.AuditCheckBlocking,
		Result:     result,
		Evidence:   decision,
		At:         s.now(),
	}); err != nil {
		return nil, err
	}
	return decision, nil
}

// checkRegistries asks each registry in order and stops at the first hit.
// Failing registries are skipped; if nothing hits, the failure is returned so
// the negative result is not cached.
func (s *Service) checkRegistries(ctx context.Context, vin string) (vinCheck, error) {
	var failed []string
	for _, registry := range s.registries {
		stolen, err := registry.CheckVIN(ctx, vin)
		if err != nil {
			failed = append(failed, registry.Name())
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"registry": registry.Name(),
				"error":    err.Error(),
			}), "stolen vehicle registry unavailable")
			continue
		}
		if stolen {
			return vinCheck{Stolen: true, Source: registry.Name()}, nil
		}
	}
	if len(failed) > 0 {
		return vinCheck{}, &degradedError{registries: failed}
	}
	return vinCheck{}, nil
}

func (s *Service) raiseAuthorityAlert(ctx context.Context, txn *models.Transaction, vehicle *models.Vehicle, source string) {
	s.metrics.IncAlert("stolen_vehicle")
	s.logg.Critical(s.logg.WithFields(ctx, map[string]any{
		"vin":        vehicle.VIN,
		"vehicle_id": vehicle.ID.String(),
		"registry":   source,
		"buyer_id":   txn.BuyerID.String(),
	}), "stolen vehicle detected")

	txnID := txn.ID
	notified := s.notifier.NotifyAdmins(ctx, nil, enums.NotificationAuthorityAlert, notifications.Payload{
		TransactionID: &txnID,
		Data: map[string]any{
			"vin":        vehicle.VIN,
			"vehicle_id": vehicle.ID,
			"registry":   source,
			"buyer_id":   txn.BuyerID,
			"seller_id":  txn.SellerID,
		},
	})
	if notified == 0 {
		s.logg.Warn(ctx, "authority alert reached no admin")
	}
}

func lookupError(err error, what string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("load %s", what))
}
