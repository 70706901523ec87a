package config

const (
	EnvPrefix = "RX"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "RX_APP_ENV"
	EnvPort     = "RX_APP_PORT"
	EnvLogLevel = "RX_LOG_LEVEL"

	EnvDBDSN  = "RX_DB_DSN"
	EnvDBHost = "RX_DB_HOST"
	EnvDBUser = "RX_DB_USER"
	EnvDBName = "RX_DB_NAME"

	EnvTenancyIdleTimeout   = "RX_TENANCY_IDLE_TIMEOUT"
	EnvTenancySweepInterval = "RX_TENANCY_SWEEP_INTERVAL"
	EnvTenancyMaxConns      = "RX_TENANCY_MAX_CONNS"
	EnvTenancyMinConns      = "RX_TENANCY_MIN_CONNS"

	EnvRedisURL = "RX_REDIS_URL"
)

var dbPartsEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
