package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "cityos"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv   = "CITYOS_APP_ENV"
	EnvDBDSN    = "CITYOS_DB_DSN"
	EnvDBHost   = "CITYOS_DB_HOST"
	EnvDBUser   = "CITYOS_DB_USER"
	EnvDBName   = "CITYOS_DB_NAME"
	EnvRedisURL = "CITYOS_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Billing      BillingConfig
	Metrics      MetricsConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"CITYOS_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CITYOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CITYOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CITYOS_SERVICE_KIND" default:"billing-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"CITYOS_DB_DSN"`
	Driver string `envconfig:"CITYOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CITYOS_DB_HOST"`
	LegacyPort     int    `envconfig:"CITYOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CITYOS_DB_USER"`
	LegacyPassword string `envconfig:"CITYOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CITYOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CITYOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CITYOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CITYOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CITYOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CITYOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CITYOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CITYOS_REDIS_ADDR"`
	Password     string        `envconfig:"CITYOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CITYOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CITYOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CITYOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CITYOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CITYOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CITYOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BillingConfig tunes the recurring billing sweep.
type BillingConfig struct {
	SweepInterval    time.Duration `envconfig:"CITYOS_BILLING_SWEEP_INTERVAL" default:"1h"`
	DueBatchLimit    int           `envconfig:"CITYOS_BILLING_DUE_BATCH_LIMIT" default:"250"`
	MaxRetryAttempts int           `envconfig:"CITYOS_BILLING_MAX_RETRY_ATTEMPTS" default:"3"`
}

type MetricsConfig struct {
	Addr string `envconfig:"CITYOS_METRICS_ADDR" default:":9464"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CITYOS_FEATURE_AUTO_MIGRATE" default:"false"`
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
