package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/autoescrow-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/autoescrow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/autoescrow-backend/api/middleware"
	"github.com/angelmondragon/autoescrow-backend/internal/audit"
	"github.com/angelmondragon/autoescrow-backend/internal/compliance"
	"github.com/angelmondragon/autoescrow-backend/internal/decision"
	"github.com/angelmondragon/autoescrow-backend/internal/escrow"
	"github.com/angelmondragon/autoescrow-backend/internal/reconciliation"
	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
	"github.com/angelmondragon/autoescrow-backend/pkg/pagination"
)

// Store is the Redis surface the router needs: rate limiting, idempotency
// and readiness.
type Store interface {
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, key string) string
}

type DecisionService interface {
	Evaluate(ctx context.Context, id uuid.UUID) (*decision.Evaluation, error)
}

type EscrowService interface {
	AutoReleaseFunds(ctx context.Context, id uuid.UUID) (*escrow.ReleaseResult, error)
	ProcessRefund(ctx context.Context, id uuid.UUID, reason string) (*escrow.RefundResult, error)
}

type ComplianceService interface {
	PerformKYC(ctx context.Context, userID uuid.UUID) (*compliance.Result, error)
	CanUserTransact(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*compliance.TransactDecision, error)
}

type ReconciliationService interface {
	MatchBankStatementEntry(ctx context.Context, entry reconciliation.StatementEntry) (*reconciliation.MatchResult, error)
	DetectSuspiciousPatterns(ctx context.Context, since time.Time) ([]reconciliation.Alert, error)
}

type AuditReader interface {
	Latest(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, check enums.AuditCheckType) (*models.AuditEntry, error)
	PageTrail(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, params pagination.Params) (*audit.TrailPage, error)
}

type TransactionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// Dependencies collects what the router wires into controllers.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          Store
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTPMetrics
	Decision       DecisionService
	Escrow         EscrowService
	Compliance     ComplianceService
	Reconciliation ReconciliationService
	Audit          AuditReader
	Transactions   TransactionReader
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.AccessLog(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	publicPolicy := middleware.NewRateLimitPolicy("public", time.Minute, cfg.HTTP.PublicRatePerMinute)
	webhookPolicy := middleware.NewRateLimitPolicy("webhook", time.Minute, cfg.HTTP.WebhookRatePerMinute)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.RateLimit(publicPolicy, deps.Redis, logg))
		r.Get("/iban/validate", controllers.PublicIBANValidate(logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Redis, logg))
		r.Use(middleware.WebhookSecret(cfg.Webhook.BankStatementSecret, logg))
		r.Post("/bank-statements", webhookcontrollers.BankStatement(deps.Reconciliation, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/transactions/{transactionId}/evaluate", controllers.UserEvaluateTransaction(deps.Decision, deps.Transactions, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/transactions/{transactionId}", func(r chi.Router) {
			r.Post("/evaluate", controllers.AdminEvaluateTransaction(deps.Decision, logg))
			r.Get("/risk", controllers.AdminTransactionRisk(deps.Audit, logg))
			r.Get("/aml", controllers.AdminTransactionAML(deps.Audit, logg))
			r.Get("/audit", controllers.AdminTransactionAudit(deps.Audit, logg))
			r.Post("/release", controllers.AdminReleaseFunds(deps.Escrow, logg))
			r.Post("/refund", controllers.AdminRefund(deps.Escrow, logg))
		})
		r.Route("/users/{userId}", func(r chi.Router) {
			r.Post("/kyc", controllers.AdminPerformKYC(deps.Compliance, logg))
			r.Get("/eligibility", controllers.AdminUserEligibility(deps.Compliance, logg))
		})
		r.Get("/payments/suspicious", controllers.AdminSuspiciousPayments(deps.Reconciliation, nil, logg))
	})

	return r
}
