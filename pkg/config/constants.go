package config

const (
	EnvPrefix = "AUTOESCROW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "AUTOESCROW_APP_ENV"
	EnvPort      = "AUTOESCROW_APP_PORT"
	EnvDBDSN     = "AUTOESCROW_DB_DSN"
	EnvDBHost    = "AUTOESCROW_DB_HOST"
	EnvDBUser    = "AUTOESCROW_DB_USER"
	EnvDBName    = "AUTOESCROW_DB_NAME"
	EnvRedisURL  = "AUTOESCROW_REDIS_URL"
	EnvJWTSecret = "AUTOESCROW_JWT_SECRET"
	EnvJWTIssuer = "AUTOESCROW_JWT_ISSUER"

	EnvPEPProvider       = "AUTOESCROW_PEP_PROVIDER"
	EnvSanctionsProvider = "AUTOESCROW_SANCTIONS_PROVIDER"
	EnvHighRiskCountries = "AUTOESCROW_AML_HIGH_RISK_COUNTRIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
