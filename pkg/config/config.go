package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
	Cron           CronConfig
	Compliance     ComplianceConfig
	Limits         LimitsConfig
	Risk           RiskConfig
	AML            AMLConfig
	Escrow         EscrowConfig
	Reconciliation ReconciliationConfig
	Registries     RegistriesConfig
	Webhook        WebhookConfig
	HTTP           HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AUTOESCROW_APP_ENV" required:"true"`
	Port         string `envconfig:"AUTOESCROW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AUTOESCROW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AUTOESCROW_LOG_WARN_STACK" default:"false"`
	// Timezone used for local-hour heuristics (night-time risk, submission windows).
	Timezone string `envconfig:"AUTOESCROW_TIMEZONE" default:"Europe/Berlin"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the configured timezone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ServiceConfig struct {
	Kind string `envconfig:"AUTOESCROW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AUTOESCROW_DB_DSN"`
	Driver string `envconfig:"AUTOESCROW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AUTOESCROW_DB_HOST"`
	LegacyPort     int    `envconfig:"AUTOESCROW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUTOESCROW_DB_USER"`
	LegacyPassword string `envconfig:"AUTOESCROW_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUTOESCROW_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUTOESCROW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUTOESCROW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUTOESCROW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUTOESCROW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUTOESCROW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"AUTOESCROW_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUTOESCROW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AUTOESCROW_REDIS_ADDR"`
	Password     string        `envconfig:"AUTOESCROW_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUTOESCROW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUTOESCROW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUTOESCROW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUTOESCROW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUTOESCROW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUTOESCROW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies operator tokens minted by the external identity service.
type JWTConfig struct {
	Secret string        `envconfig:"AUTOESCROW_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"AUTOESCROW_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"AUTOESCROW_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AUTOESCROW_AUTO_MIGRATE" default:"false"`
	// AutoRelease disables the release sweep without touching the schedule.
	AutoRelease bool `envconfig:"AUTOESCROW_FEATURE_AUTO_RELEASE" default:"true"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"AUTOESCROW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"AUTOESCROW_PUBSUB_NOTIFICATION_TOPIC" default:"escrow-notifications"`
	EscrowTopic       string `envconfig:"AUTOESCROW_PUBSUB_ESCROW_TOPIC" default:"escrow-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"AUTOESCROW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"AUTOESCROW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"AUTOESCROW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"AUTOESCROW_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	TickInterval time.Duration `envconfig:"AUTOESCROW_CRON_TICK_INTERVAL" default:"1m"`
	SweepWorkers int           `envconfig:"AUTOESCROW_SWEEP_WORKERS" default:"4"`

	ReconciliationSchedule string `envconfig:"AUTOESCROW_CRON_RECONCILIATION" default:"0 * * * *"`
	AutoReleaseSchedule    string `envconfig:"AUTOESCROW_CRON_AUTO_RELEASE" default:"*/15 * * * *"`
	InspectionSchedule     string `envconfig:"AUTOESCROW_CRON_INSPECTIONS" default:"0 8 * * *"`
	ReminderSchedule       string `envconfig:"AUTOESCROW_CRON_REMINDERS" default:"0 9 * * *"`
	PatternSchedule        string `envconfig:"AUTOESCROW_CRON_PATTERNS" default:"30 * * * *"`
}

// ComplianceConfig selects screening providers. An empty provider key selects
// the local watchlist tables.
type ComplianceConfig struct {
	PEPProvider       string        `envconfig:"AUTOESCROW_PEP_PROVIDER"`
	SanctionsProvider string        `envconfig:"AUTOESCROW_SANCTIONS_PROVIDER"`
	ProviderURL       string        `envconfig:"AUTOESCROW_SCREENING_API_URL"`
	ProviderToken     string        `envconfig:"AUTOESCROW_SCREENING_API_TOKEN"`
	Timeout           time.Duration `envconfig:"AUTOESCROW_SCREENING_TIMEOUT" default:"10s"`
	RatePerMinute     int           `envconfig:"AUTOESCROW_SCREENING_RATE_PER_MINUTE" default:"120"`
	MatchThreshold    float64       `envconfig:"AUTOESCROW_SCREENING_MATCH_THRESHOLD" default:"0.85"`
}

type LimitsConfig struct {
	DailyLimit   float64 `envconfig:"AUTOESCROW_LIMIT_DAILY" default:"50000"`
	MonthlyLimit float64 `envconfig:"AUTOESCROW_LIMIT_MONTHLY" default:"200000"`
}

type RiskConfig struct {
	RoundAmountWeight   int           `envconfig:"AUTOESCROW_RISK_ROUND_AMOUNT_WEIGHT" default:"5"`
	BlacklistTTL        time.Duration `envconfig:"AUTOESCROW_RISK_BLACKLIST_TTL" default:"1h"`
	StolenVehicleTTL    time.Duration `envconfig:"AUTOESCROW_RISK_STOLEN_TTL" default:"24h"`
	FingerprintTTL      time.Duration `envconfig:"AUTOESCROW_RISK_FINGERPRINT_TTL" default:"5m"`
	ComparableYearRange int           `envconfig:"AUTOESCROW_RISK_COMPARABLE_YEARS" default:"2"`
}

type AMLConfig struct {
	HighRiskCountries []string `envconfig:"AUTOESCROW_AML_HIGH_RISK_COUNTRIES" default:"AF,BY,CU,IR,KP,MM,RU,SY,VE,YE"`
}

type EscrowConfig struct {
	ServiceFeeRate      float64       `envconfig:"AUTOESCROW_ESCROW_SERVICE_FEE_RATE" default:"0.025"`
	ServiceFeeFloor     float64       `envconfig:"AUTOESCROW_ESCROW_SERVICE_FEE_FLOOR" default:"25"`
	DealerCommission    float64       `envconfig:"AUTOESCROW_ESCROW_DEALER_COMMISSION_RATE" default:"0.03"`
	ReleaseHold         time.Duration `envconfig:"AUTOESCROW_ESCROW_RELEASE_HOLD" default:"72h"`
	InspectionGraceDays int           `envconfig:"AUTOESCROW_ESCROW_INSPECTION_GRACE_DAYS" default:"7"`
	EscrowAccountID     string        `envconfig:"AUTOESCROW_ESCROW_ACCOUNT_ID" default:"escrow-main"`
}

type ReconciliationConfig struct {
	Provider      string        `envconfig:"AUTOESCROW_BANK_PROVIDER"`
	ProviderURL   string        `envconfig:"AUTOESCROW_BANK_API_URL"`
	ProviderToken string        `envconfig:"AUTOESCROW_BANK_API_TOKEN"`
	Timeout       time.Duration `envconfig:"AUTOESCROW_BANK_TIMEOUT" default:"15s"`
	RatePerMinute int           `envconfig:"AUTOESCROW_BANK_RATE_PER_MINUTE" default:"60"`
	LookbackDays  int           `envconfig:"AUTOESCROW_RECONCILE_LOOKBACK_DAYS" default:"30"`
	RejectAfter   int           `envconfig:"AUTOESCROW_RECONCILE_REJECT_AFTER_DAYS" default:"14"`
}

// RegistriesConfig points at the stolen-vehicle registries. Empty URLs leave
// the local table as the only source.
type RegistriesConfig struct {
	InterpolURL   string        `envconfig:"AUTOESCROW_REGISTRY_INTERPOL_URL"`
	InterpolToken string        `envconfig:"AUTOESCROW_REGISTRY_INTERPOL_TOKEN"`
	PoliceURL     string        `envconfig:"AUTOESCROW_REGISTRY_POLICE_URL"`
	PoliceToken   string        `envconfig:"AUTOESCROW_REGISTRY_POLICE_TOKEN"`
	Timeout       time.Duration `envconfig:"AUTOESCROW_REGISTRY_TIMEOUT" default:"8s"`
}

type WebhookConfig struct {
	BankStatementSecret string `envconfig:"AUTOESCROW_WEBHOOK_BANK_SECRET"`
}

// HTTPConfig tunes the operator API surface. Rate limits are per client IP
// per minute; zero disables the limiter.
type HTTPConfig struct {
	CORSOrigins          []string `envconfig:"AUTOESCROW_CORS_ORIGINS"`
	PublicRatePerMinute  int      `envconfig:"AUTOESCROW_PUBLIC_RATE_PER_MINUTE" default:"30"`
	WebhookRatePerMinute int      `envconfig:"AUTOESCROW_WEBHOOK_RATE_PER_MINUTE" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
