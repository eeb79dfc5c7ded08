// Package app wires the decision, escrow and reconciliation services from
// configuration so every entrypoint builds them the same way.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/internal/aml"
	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/compliance"
	"github.com/angelmondragon/autoescrow-backend/internal/decision"
	"github.com/angelmondragon/autoescrow-backend/internal/directory"
	"github.com/angelmondragon/autoescrow-backend/internal/escrow"
	"github.com/angelmondragon/autoescrow-backend/internal/fraud"
	"github.com/angelmondragon/autoescrow-backend/internal/ledger"
	"github.com/angelmondragon/autoescrow-backend/internal/notifications"
	"github.com/angelmondragon/autoescrow-backend/internal/reconciliation"
	"github.com/angelmondragon/autoescrow-backend/internal/transactions"
	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/outbox"
	"github.com/angelmondragon/autoescrow-backend/pkg/redis"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the fully wired domain layer.
type Services struct {
	Transactions   transactions.Repository
	Audit          *audit.Service
	Outbox         *outbox.Repository
	Compliance     *compliance.Service
	Fraud          *fraud.Service
	AML            *aml.Service
	Escrow         *escrow.Service
	Decision       *decision.Service
	Reconciliation *reconciliation.Service
}

func Build(p Params) (*Services, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, errors.New("config, logger and db are required")
	}
	cfg, logg, conn := p.Config, p.Logger, p.DB.DB()
	loc := cfg.App.Location()

	decisionMetrics := metrics.NewDecisionMetrics(p.Registerer)
	providerMetrics := metrics.NewProviderMetrics(p.Registerer)

	txns := transactions.NewRepository(conn)
	users := directory.NewRepository(conn)
	payments := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(payments)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	auditSvc, err := audit.NewService(audit.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	notifier, err := notifications.NewDispatcher(conn, outboxSvc, users, logg)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	local := compliance.NewLocalScreener(compliance.NewRepository(conn))
	pep, err := compliance.NewScreener(cfg.Compliance.PEPProvider, cfg.Compliance, local, providerMetrics)
	if err != nil {
		return nil, fmt.Errorf("pep screener: %w", err)
	}
	sanctions, err := compliance.NewScreener(cfg.Compliance.SanctionsProvider, cfg.Compliance, local, providerMetrics)
	if err != nil {
		return nil, fmt.Errorf("sanctions screener: %w", err)
	}
	complianceSvc, err := compliance.NewService(compliance.ServiceParams{
		Users:        users,
		Transactions: txns,
		PEP:          pep,
		Sanctions:    sanctions,
		Audit:        auditSvc,
		Limits:       cfg.Limits,
		Logger:       logg,
		Metrics:      decisionMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("compliance service: %w", err)
	}

	fraudRepo := fraud.NewRepository(conn)
	registries, err := fraud.NewRegistryChain(cfg.Registries, fraud.NewLocalRegistry(fraudRepo), providerMetrics)
	if err != nil {
		return nil, fmt.Errorf("vin registries: %w", err)
	}
	fraudParams := fraud.ServiceParams{
		Users:        users,
		Transactions: txns,
		Repo:         fraudRepo,
		Registries:   registries,
		Notifier:     notifier,
		Audit:        auditSvc,
		Risk:         cfg.Risk,
		Weights:      fraud.Weights{RoundAmount: cfg.Risk.RoundAmountWeight},
		Location:     loc,
		Logger:       logg,
		Metrics:      decisionMetrics,
	}
	if p.Redis != nil {
		fraudParams.Cache = p.Redis
		fraudParams.CacheKey = p.Redis.CacheKey
	}
	fraudSvc, err := fraud.NewService(fraudParams)
	if err != nil {
		return nil, fmt.Errorf("fraud service: %w", err)
	}

	amlSvc, err := aml.NewService(aml.ServiceParams{
		DB:                p.DB,
		Users:             users,
		Transactions:      txns,
		History:           auditSvc,
		Audit:             auditSvc,
		HighRiskCountries: cfg.AML.HighRiskCountries,
		Logger:            logg,
		Metrics:           decisionMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("aml service: %w", err)
	}

	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		DB:           p.DB,
		Transactions: txns,
		Payments:     payments,
		Ledger:       ledgerSvc,
		Directory:    users,
		Notifier:     notifier,
		Outbox:       outboxSvc,
		Policy: escrow.Policy{
			ServiceFeeRate:  decimal.NewFromFloat(cfg.Escrow.ServiceFeeRate),
			ServiceFeeFloor: decimal.NewFromFloat(cfg.Escrow.ServiceFeeFloor),
			DealerRate:      decimal.NewFromFloat(cfg.Escrow.DealerCommission),
		},
		ReleaseHold:     cfg.Escrow.ReleaseHold,
		InspectionGrace: time.Duration(cfg.Escrow.InspectionGraceDays) * 24 * time.Hour,
		Workers:         cfg.Cron.SweepWorkers,
		Location:        loc,
		Logger:          logg,
	})
	if err != nil {
		return nil, fmt.Errorf("escrow service: %w", err)
	}

	decisionSvc, err := decision.NewService(decision.ServiceParams{
		Transactions: txns,
		Compliance:   complianceSvc,
		Blocking:     fraudSvc,
		Fraud:        fraudSvc,
		AML:          amlSvc,
		Lifecycle:    escrowSvc,
		Audit:        auditSvc,
		Logger:       logg,
		Metrics:      decisionMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("decision service: %w", err)
	}

	searcher, err := reconciliation.NewSearcher(cfg.Reconciliation, providerMetrics)
	if err != nil {
		return nil, fmt.Errorf("statement searcher: %w", err)
	}
	reconSvc, err := reconciliation.NewService(reconciliation.ServiceParams{
		DB:           p.DB,
		Transactions: txns,
		Payments:     payments,
		Searcher:     searcher,
		Notifier:     notifier,
		Outbox:       outboxSvc,
		Audit:        auditSvc,
		Lookback:     days(cfg.Reconciliation.LookbackDays),
		RejectAfter:  days(cfg.Reconciliation.RejectAfter),
		Workers:      cfg.Cron.SweepWorkers,
		Location:     loc,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	return &Services{
		Transactions:   txns,
		Audit:          auditSvc,
		Outbox:         outboxRepo,
		Compliance:     complianceSvc,
		Fraud:          fraudSvc,
		AML:            amlSvc,
		Escrow:         escrowSvc,
		Decision:       decisionSvc,
		Reconciliation: reconSvc,
	}, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
