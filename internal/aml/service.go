// Package aml runs anti-money-laundering heuristics on transactions and
// determines reporting obligations.
package aml

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/internal/repo"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

// Result is the persisted AML verdict for one transaction.
type Result struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Outcome
	CheckedAt time.Time `json:"checked_at"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type riskHistory interface {
	LastComplianceRiskLevel(ctx context.Context, userID uuid.UUID) (*enums.RiskLevel, error)
}

type ServiceParams struct {
	DB                txRunner
	Users             directory.Repository
	Transactions      transactions.Repository
	History           riskHistory
	Audit             audit.Recorder
	HighRiskCountries []string
	Logger            *logger.Logger
	Metrics           *metrics.DecisionMetrics
	Now               func() time.Time
}

type Service struct {
	db           txRunner
	users        directory.Repository
	transactions transactions.Repository
	history      riskHistory
	audit        audit.Recorder
	highRisk     CountryList
	logg         *logger.Logger
	metrics      *metrics.DecisionMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("db is required")
	case params.Users == nil:
		return nil, errors.New("users repository is required")
	case params.Transactions == nil:
		return nil, errors.New("transactions repository is required")
	case params.History == nil:
		return nil, errors.New("compliance history is required")
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
	return &Service{
		db:           params.DB,
		users:        params.Users,
		transactions: params.Transactions,
		history:      params.History,
		audit:        params.Audit,
		highRisk:     NewCountryList(params.HighRiskCountries),
		logg:         logg,
		metrics:      params.Metrics,
		now:          now,
	}, nil
}

// PerformAMLCheck scores txn, stores the flags on it and appends the result
// to the audit log in one unit of work.
func (s *Service) PerformAMLCheck(ctx context.Context, txn *models.Transaction) (*Result, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())
	now := s.now()

	signals, err := s.gatherSignals(ctx, txn, now)
	if err != nil {
		return nil, err
	}
	result := &Result{TransactionID: txn.ID, Outcome: Evaluate(signals, s.highRisk), CheckedAt: now}
	s.metrics.ObserveAMLScore(result.RiskScore)

	auditResult := enums.AuditResultPassed
	switch {
	case result.RequiresSAR:
		auditResult = enums.AuditResultFailed
	case len(result.Flags) > 0:
		auditResult = enums.AuditResultFlagged
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transactions.WithTx(tx).SetAMLFlags(ctx, txn.ID, result.Flags); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			EntityType: enums.AuditEntityTransaction,
			EntityID:   txn.ID,
			CheckType:  enums.AuditCheckAML,
			Result:     auditResult,
			RiskLevel:  audit.Ptr(result.RiskLevel),
			Evidence:   result,
			At:         now,
		})
	})
	if err != nil {
		s.logg.Error(ctx, "persist aml result", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist aml result")
	}
	txn.AMLFlags = result.Flags

	fields := map[string]any{
		"aml_score":          result.RiskScore,
		"aml_flags":          result.Flags,
		"requires_reporting": result.RequiresReporting,
	}
	if result.RequiresSAR {
		s.metrics.IncAlert("sar")
		s.logg.Critical(s.logg.WithFields(ctx, fields), "suspicious activity report required")
	} else {
		s.logg.Info(s.logg.WithFields(ctx, fields), "aml check completed")
	}
	return result, nil
}

func (s *Service) gatherSignals(ctx context.Context, txn *models.Transaction, now time.Time) (Signals, error) {
	sig := Signals{Amount: txn.Amount}

	buyer, err := s.users.GetUser(ctx, txn.BuyerID)
	if err != nil {
		return sig, lookupError(err, "buyer")
	}
	seller, err := s.users.GetUser(ctx, txn.SellerID)
	if err != nil {
		return sig, lookupError(err, "seller")
	}
	sig.BuyerCountry = buyer.Country
	sig.SellerCountry = seller.Country

	if sig.BuyerTxns7d, err = s.transactions.CountForBuyerSince(ctx, buyer.ID, now.Add(-7*24*time.Hour), txn.ID); err != nil {
		return sig, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count weekly transactions")
	}
	if sig.PriorTotal30d, err = s.transactions.SumForBuyerSince(ctx, buyer.ID, now.Add(-30*24*time.Hour), txn.ID); err != nil {
		return sig, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum monthly volume")
	}
	if sig.BuyerLastRiskLevel, err = s.history.LastComplianceRiskLevel(ctx, buyer.ID); err != nil {
		return sig, err
	}
	return sig, nil
}

func lookupError(err error, what string) error {
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
