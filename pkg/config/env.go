package config

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:lankacart.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv   = "LANKACART_APP_ENV"
	EnvPort     = "LANKACART_APP_PORT"
	EnvLogLevel = "LANKACART_LOG_LEVEL"

	EnvDBDSN  = "LANKACART_DB_DSN"
	EnvDBHost = "LANKACART_DB_HOST"
	EnvDBUser = "LANKACART_DB_USER"
	EnvDBName = "LANKACART_DB_NAME"

	EnvRedisURL  = "LANKACART_REDIS_URL"
	EnvJWTSecret = "LANKACART_JWT_SECRET"
	EnvJWTIssuer = "LANKACART_JWT_ISSUER"
	EnvUseSQLite = "LANKACART_USE_SQLITE"

	EnvPayHereMerchantID     = "LANKACART_PAYHERE_MERCHANT_ID"
	EnvPayHereMerchantSecret = "LANKACART_PAYHERE_MERCHANT_SECRET"
	EnvCartMaxLineQty        = "LANKACART_CART_MAX_LINE_QTY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
