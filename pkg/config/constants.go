package config

// EnvPrefix scopes every environment variable this service reads.
const EnvPrefix = "CBMM"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "CBMM_APP_ENV"
	EnvPort     = "CBMM_APP_PORT"
	EnvDBDSN    = "CBMM_DB_DSN"
	EnvDBHost   = "CBMM_DB_HOST"
	EnvDBUser   = "CBMM_DB_USER"
	EnvDBName   = "CBMM_DB_NAME"
	EnvRedisURL = "CBMM_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
