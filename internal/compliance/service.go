// Package compliance runs KYC, PEP and sanctions screening and enforces
// per-user transaction limits. Screening fails closed: a provider that errors,
// times out or panics never produces a passed check.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

// Denial reasons reported by CanUserTransact.
const (
	ReasonKYCNotVerified       = "kyc_not_verified"
	ReasonEmailNotVerified     = "email_not_verified"
	ReasonDailyLimitExceeded   = "daily_limit_exceeded"
	ReasonMonthlyLimitExceeded = "monthly_limit_exceeded"
)

// Result is the per-user compliance snapshot. Screening fields are true only
// when the check ran and found nothing.
type Result struct {
	UserID             uuid.UUID       `json:"user_id"`
	IdentityVerified   bool            `json:"identity_verified"`
	AddressVerified    bool            `json:"address_verified"`
	DocumentVerified   bool            `json:"document_verified"`
	PEPScreening       bool            `json:"pep_screening"`
	SanctionsScreening bool            `json:"sanctions_screening"`
	RiskLevel          enums.RiskLevel `json:"risk_level"`
	CheckedAt          time.Time       `json:"checked_at"`
}

// TransactDecision explains whether a user may start a transaction of a given amount.
type TransactDecision struct {
	Allowed      bool            `json:"allowed"`
	Reasons      []string        `json:"reasons"`
	DailyTotal   decimal.Decimal `json:"daily_total"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
}

// screening is the audit evidence for one list.
type screening struct {
	List     enums.WatchlistList `json:"list"`
	Provider string              `json:"provider"`
	Passed   bool                `json:"passed"`
	Matches  []Match             `json:"matches,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type ServiceParams struct {
	Users        directory.Repository
	Transactions transactions.Repository
	PEP          Screener
	Sanctions    Screener
	Audit        audit.Recorder
	Limits       config.LimitsConfig
	Logger       *logger.Logger
	Metrics      *metrics.DecisionMetrics
	Now          func() time.Time
}

type Service struct {
	users        directory.Repository
	transactions transactions.Repository
	pep          Screener
	sanctions    Screener
	audit        audit.Recorder
	dailyLimit   decimal.Decimal
	monthlyLimit decimal.Decimal
	logg         *logger.Logger
	metrics      *metrics.DecisionMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, errors.New("users repository is required")
	}
	if params.Transactions == nil {
		return nil, errors.New("transactions repository is required")
	}
	if params.PEP == nil || params.Sanctions == nil {
		return nil, errors.New("pep and sanctions screeners are required")
	}
	if params.Audit == nil {
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
	return &Service{
		users:        params.Users,
		transactions: params.Transactions,
		pep:          params.PEP,
		sanctions:    params.Sanctions,
		audit:        params.Audit,
		dailyLimit:   decimal.NewFromFloat(params.Limits.DailyLimit),
		monthlyLimit: decimal.NewFromFloat(params.Limits.MonthlyLimit),
		logg:         logg,
		metrics:      params.Metrics,
		now:          now,
	}, nil
}

// PerformKYC screens the user and appends the outcome to the compliance history.
func (s *Service) PerformKYC(ctx context.Context, userID uuid.UUID) (*Result, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	result := &Result{
		UserID:           user.ID,
		IdentityVerified: user.EmailVerifiedAt != nil && user.PhoneVerifiedAt != nil,
		AddressVerified:  user.AddressVerifiedAt != nil,
		DocumentVerified: user.KYCStatus == enums.KYCStatusVerified,
		CheckedAt:        s.now(),
	}

	pep := s.screen(ctx, s.pep, user, enums.WatchlistPEP)
	result.PEPScreening = pep.Passed

	sanctions := make([]screening, 0, len(enums.SanctionsLists))
	result.SanctionsScreening = true
	for _, list := range enums.SanctionsLists {
		outcome := s.screen(ctx, s.sanctions, user, list)
		sanctions = append(sanctions, outcome)
		if !outcome.Passed {
			result.SanctionsScreening = false
		}
	}

	result.RiskLevel = riskLevel(result)

	if err := s.recordMatches(ctx, user.ID, enums.AuditCheckPEP, []screening{pep}); err != nil {
		return nil, err
	}
	if err := s.recordMatches(ctx, user.ID, enums.AuditCheckSanctions, sanctions); err != nil {
		return nil, err
	}

	auditResult := enums.AuditResultPassed
	switch result.RiskLevel {
	case enums.RiskLevelHigh:
		auditResult = enums.AuditResultFailed
	case enums.RiskLevelMedium:
		auditResult = enums.AuditResultFlagged
	}
	if err := s.audit.Record(ctx, nil, audit.Entry{
		EntityType: enums.AuditEntityUser,
		EntityID:   user.ID,
		CheckType:  enums.AuditCheckKYC,
		Result:     auditResult,
		RiskLevel:  audit.Ptr(result.RiskLevel),
		Evidence: map[string]any{
			"result":    result,
			"pep":       pep,
			"sanctions": sanctions,
		},
		At: result.CheckedAt,
	}); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"risk_level":          result.RiskLevel,
		"pep_screening":       result.PEPScreening,
		"sanctions_screening": result.SanctionsScreening,
	}), "kyc check completed")
	return result, nil
}

// CanUserTransact evaluates every rule and reports all failing reasons together.
func (s *Service) CanUserTransact(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*TransactDecision, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return s.canTransact(ctx, userID, amount, uuid.Nil)
}

// CanUserTransactFor gates an already created transaction. The transaction
// itself is left out of the rolling sums so its amount is not counted twice.
func (s *Service) CanUserTransactFor(ctx context.Context, txn *models.Transaction) (*TransactDecision, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	if !txn.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return s.canTransact(ctx, txn.BuyerID, txn.Amount, txn.ID)
}

func (s *Service) canTransact(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, exclude uuid.UUID) (*TransactDecision, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	daily, err := s.transactions.SumForBuyerSince(ctx, userID, now.Add(-24*time.Hour), exclude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum daily volume")
	}
	monthly, err := s.transactions.SumForBuyerSince(ctx, userID, now.Add(-30*24*time.Hour), exclude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum monthly volume")
	}

	decision := &TransactDecision{Reasons: []string{}, DailyTotal: daily, MonthlyTotal: monthly}
	if user.KYCStatus != enums.KYCStatusVerified {
		decision.Reasons = append(decision.Reasons, ReasonKYCNotVerified)
	}
	if user.EmailVerifiedAt == nil {
		decision.Reasons = append(decision.Reasons, ReasonEmailNotVerified)
	}
	if daily.Add(amount).GreaterThan(s.dailyLimit) {
		decision.Reasons = append(decision.Reasons, ReasonDailyLimitExceeded)
	}
	if monthly.Add(amount).GreaterThan(s.monthlyLimit) {
		decision.Reasons = append(decision.Reasons, ReasonMonthlyLimitExceeded)
	}
	decision.Allowed = len(decision.Reasons) == 0
	return decision, nil
}

func (s *Service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

// screen runs one provider call. Errors and panics become a failed outcome.
func (s *Service) screen(ctx context.Context, screener Screener, user *models.User, list enums.WatchlistList) (outcome screening) {
	outcome = screening{List: list, Provider: screener.Name()}
	defer func() {
		if r := recover(); r != nil {
			outcome.Passed = false
			outcome.Matches = nil
			outcome.Error = fmt.Sprintf("provider panic: %v", r)
			s.logg.Error(ctx, "screening provider panicked", errors.New(outcome.Error))
		}
	}()

	resp, err := screener.Screen(ctx, ScreenRequest{
		List:        list,
		FullName:    user.FullName(),
		Country:     user.Country,
		DateOfBirth: user.DateOfBirth,
	})
	if err != nil {
		outcome.Error = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"list":     list,
			"provider": outcome.Provider,
			"error":    err.Error(),
		}), "screening unavailable; check failed closed")
		return outcome
	}
	if len(resp.Matches) > 0 {
		outcome.Matches = resp.Matches
		s.metrics.IncAlert(string(list) + "_match")
		s.logg.Critical(s.logg.WithFields(ctx, map[string]any{
			"list":     list,
			"provider": outcome.Provider,
			"matches":  len(resp.Matches),
		}), "watchlist match")
		return outcome
	}
	outcome.Passed = true
	return outcome
}

// recordMatches appends one flagged entry per list that produced hits.
func (s *Service) recordMatches(ctx context.Context, userID uuid.UUID, check enums.AuditCheckType, outcomes []screening) error {
	for _, outcome := range outcomes {
		if len(outcome.Matches) == 0 {
			continue
		}
		if err := s.audit.Record(ctx, nil, audit.Entry{
			EntityType: enums.AuditEntityUser,
			EntityID:   userID,
			CheckType:  check,
			Result:     enums.AuditResultFlagged,
			RiskLevel:  audit.Ptr(enums.RiskLevelHigh),
			Evidence:   outcome,
			At:         s.now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func riskLevel(r *Result) enums.RiskLevel {
	switch {
	case !r.PEPScreening || !r.SanctionsScreening:
		return enums.RiskLevelHigh
	case !r.IdentityVerified || !r.DocumentVerified:
		return enums.RiskLevelMedium
	default:
		return enums.RiskLevelLow
	}
}
