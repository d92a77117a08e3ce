package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	PayHere      PayHereConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LANKACART_APP_ENV" required:"true"`
	Port         string `envconfig:"LANKACART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LANKACART_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LANKACART_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LANKACART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind           string   `envconfig:"LANKACART_SERVICE_KIND" default:"api"`
	AllowedOrigins []string `envconfig:"LANKACART_CORS_ALLOWED_ORIGINS"`
}

type DBConfig struct {
	DSN    string `envconfig:"LANKACART_DB_DSN"`
	Driver string `envconfig:"LANKACART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LANKACART_DB_HOST"`
	LegacyPort     int    `envconfig:"LANKACART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LANKACART_DB_USER"`
	LegacyPassword string `envconfig:"LANKACART_DB_PASSWORD"`
	LegacyName     string `envconfig:"LANKACART_DB_NAME"`
	LegacySSLMode  string `envconfig:"LANKACART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LANKACART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LANKACART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LANKACART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LANKACART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LANKACART_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	TxRetries          int           `envconfig:"LANKACART_DB_TX_RETRIES" default:"2"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LANKACART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LANKACART_REDIS_ADDR"`
	Password     string        `envconfig:"LANKACART_REDIS_PASSWORD"`
	DB           int           `envconfig:"LANKACART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LANKACART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LANKACART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LANKACART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LANKACART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LANKACART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies shopper access tokens minted by the auth service.
type JWTConfig struct {
	Secret            string `envconfig:"LANKACART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LANKACART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LANKACART_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LANKACART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LANKACART_AUTO_MIGRATE" default:"false"`
}

type CartConfig struct {
	MaxLineQty     int           `envconfig:"LANKACART_CART_MAX_LINE_QTY" default:"10"`
	CookieName     string        `envconfig:"LANKACART_CART_COOKIE_NAME" default:"lc_cart"`
	CookieTTL      time.Duration `envconfig:"LANKACART_CART_COOKIE_TTL" default:"720h"`
	CookieSecure   bool          `envconfig:"LANKACART_CART_COOKIE_SECURE" default:"true"`
	MutationLimit  int64         `envconfig:"LANKACART_CART_MUTATION_LIMIT" default:"120"`
	MutationWindow time.Duration `envconfig:"LANKACART_CART_MUTATION_WINDOW" default:"1m"`
}

type CheckoutConfig struct {
	OrderNumberAttempts int           `envconfig:"LANKACART_CHECKOUT_ORDER_NUMBER_ATTEMPTS" default:"5"`
	IdempotencyTTL      time.Duration `envconfig:"LANKACART_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
	WebhookDedupeTTL    time.Duration `envconfig:"LANKACART_CHECKOUT_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

// PayHereConfig holds the hosted payment provider credentials. An empty
// merchant id leaves the gateway unconfigured.
type PayHereConfig struct {
	MerchantID     string `envconfig:"LANKACART_PAYHERE_MERCHANT_ID"`
	MerchantSecret string `envconfig:"LANKACART_PAYHERE_MERCHANT_SECRET"`
	CheckoutURL    string `envconfig:"LANKACART_PAYHERE_CHECKOUT_URL" default:"https://sandbox.payhere.lk/pay/checkout"`
	ReturnURL      string `envconfig:"LANKACART_PAYHERE_RETURN_URL"`
	CancelURL      string `envconfig:"LANKACART_PAYHERE_CANCEL_URL"`
	NotifyURL      string `envconfig:"LANKACART_PAYHERE_NOTIFY_URL"`
}

// Configured reports whether the merchant credentials are present.
func (p PayHereConfig) Configured() bool {
	return strings.TrimSpace(p.MerchantID) != "" && strings.TrimSpace(p.MerchantSecret) != ""
}

// GCPConfig selects credentials for Pub/Sub. Inline JSON wins over a key
// file; with neither, application default credentials are used.
type GCPConfig struct {
	ProjectID              string `envconfig:"LANKACART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LANKACART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LANKACART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"LANKACART_PUBSUB_ORDERS_TOPIC" default:"lc-order-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LANKACART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LANKACART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LANKACART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"LANKACART_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxBackoff     time.Duration `envconfig:"LANKACART_OUTBOX_MAX_BACKOFF" default:"10s"`
}

// MaintenanceConfig drives the cron worker.
type MaintenanceConfig struct {
	Interval            time.Duration `envconfig:"LANKACART_MAINTENANCE_INTERVAL" default:"15m"`
	OutboxRetentionDays int           `envconfig:"LANKACART_MAINTENANCE_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"LANKACART_MAINTENANCE_DLQ_RETENTION_DAYS" default:"90"`
	PurgeBatchSize      int           `envconfig:"LANKACART_MAINTENANCE_PURGE_BATCH" default:"500"`
	SessionTTL          time.Duration `envconfig:"LANKACART_MAINTENANCE_SESSION_TTL" default:"2h"`
	SessionBatchSize    int           `envconfig:"LANKACART_MAINTENANCE_SESSION_BATCH" default:"200"`
	JobTimeout          time.Duration `envconfig:"LANKACART_MAINTENANCE_JOB_TIMEOUT" default:"5m"`
	RunOnce             bool          `envconfig:"LANKACART_MAINTENANCE_RUN_ONCE" default:"false"`
	Jobs                []string      `envconfig:"LANKACART_MAINTENANCE_JOBS"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
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
