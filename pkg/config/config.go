package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Tenancy       TenancyConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Commerce      CommerceConfig
	Cron          CronConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Tenancy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RX_APP_ENV" required:"true"`
	Port         string `envconfig:"RX_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RX_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"RX_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig describes the admin partition connection.
type DBConfig struct {
	DSN    string `envconfig:"RX_DB_DSN"`
	Driver string `envconfig:"RX_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"RX_DB_HOST"`
	Port     int    `envconfig:"RX_DB_PORT" default:"5432"`
	User     string `envconfig:"RX_DB_USER"`
	Password string `envconfig:"RX_DB_PASSWORD"`
	Name     string `envconfig:"RX_DB_NAME"`
	SSLMode  string `envconfig:"RX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// TenancyConfig bounds the per-tenant partition pools and the idle sweep.
type TenancyConfig struct {
	IdleTimeout      time.Duration `envconfig:"RX_TENANCY_IDLE_TIMEOUT" default:"30m"`
	SweepInterval    time.Duration `envconfig:"RX_TENANCY_SWEEP_INTERVAL" default:"5m"`
	HealthCheckAfter time.Duration `envconfig:"RX_TENANCY_HEALTH_CHECK_AFTER" default:"1m"`
	MaxConns         int           `envconfig:"RX_TENANCY_MAX_CONNS" default:"10"`
	MinConns         int           `envconfig:"RX_TENANCY_MIN_CONNS" default:"1"`
	ConnMaxIdleTime  time.Duration `envconfig:"RX_TENANCY_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnectTimeout   time.Duration `envconfig:"RX_TENANCY_CONNECT_TIMEOUT" default:"5s"`
	StatementTimeout time.Duration `envconfig:"RX_TENANCY_STATEMENT_TIMEOUT" default:"30s"`
	SchemaPrefix     string        `envconfig:"RX_TENANCY_SCHEMA_PREFIX" default:"tenant_"`
}

func (t TenancyConfig) validate() error {
	if t.MaxConns <= 0 {
		return fmt.Errorf("%s must be positive", EnvTenancyMaxConns)
	}
	if t.MinConns < 0 || t.MinConns > t.MaxConns {
		return fmt.Errorf("%s must be between 0 and %s", EnvTenancyMinConns, EnvTenancyMaxConns)
	}
	if t.IdleTimeout <= 0 || t.SweepInterval <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvTenancyIdleTimeout, EnvTenancySweepInterval)
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"RX_REDIS_URL"`
	Address      string        `envconfig:"RX_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"RX_REDIS_PASSWORD"`
	DB           int           `envconfig:"RX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RX_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"RX_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type CacheConfig struct {
	Workers        int           `envconfig:"RX_CACHE_WORKERS" default:"4"`
	QueueSize      int           `envconfig:"RX_CACHE_QUEUE_SIZE" default:"64"`
	RefreshTimeout time.Duration `envconfig:"RX_CACHE_REFRESH_TIMEOUT" default:"10s"`
	DefaultTTL     time.Duration `envconfig:"RX_CACHE_DEFAULT_TTL" default:"10m"`
	StaleAfter     time.Duration `envconfig:"RX_CACHE_STALE_AFTER" default:"1m"`
}

type CommerceConfig struct {
	MaxAttempts    int           `envconfig:"RX_COMMERCE_MAX_ATTEMPTS" default:"3"`
	AttemptTimeout time.Duration `envconfig:"RX_COMMERCE_ATTEMPT_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RX_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"RX_CRON_LOCK_TTL" default:"10m"`
}

type NotificationsConfig struct {
	SubscriberBuffer int  `envconfig:"RX_NOTIFY_SUBSCRIBER_BUFFER" default:"32"`
	RelayEnabled     bool `envconfig:"RX_NOTIFY_RELAY_ENABLED" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartsEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
