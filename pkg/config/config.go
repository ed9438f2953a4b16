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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Certification CertificationConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Certification.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FLAGIT_APP_ENV" required:"true"`
	Port         string `envconfig:"FLAGIT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FLAGIT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FLAGIT_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FLAGIT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FLAGIT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FLAGIT_DB_DSN"`
	Driver string `envconfig:"FLAGIT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FLAGIT_DB_HOST"`
	LegacyPort     int    `envconfig:"FLAGIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FLAGIT_DB_USER"`
	LegacyPassword string `envconfig:"FLAGIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FLAGIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FLAGIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FLAGIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLAGIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLAGIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLAGIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements that run longer, such as waits on a store lock. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"FLAGIT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLAGIT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FLAGIT_REDIS_ADDR"`
	Password     string        `envconfig:"FLAGIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLAGIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLAGIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FLAGIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FLAGIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLAGIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FLAGIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies member tokens minted by the external auth service.
type JWTConfig struct {
	Secret            string `envconfig:"FLAGIT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FLAGIT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FLAGIT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CertificationConfig tunes the proximity state machine.
type CertificationConfig struct {
	RadiusMeters     float64       `envconfig:"FLAGIT_CERT_RADIUS_METERS" default:"50"`
	StatusStrategy   string        `envconfig:"FLAGIT_CERT_STATUS_STRATEGY" default:"windowed"`
	LockTimeout      time.Duration `envconfig:"FLAGIT_CERT_LOCK_TIMEOUT" default:"5s"`
	PollWindow       time.Duration `envconfig:"FLAGIT_CERT_POLL_WINDOW" default:"1m"`
	PollMemberLimit  int           `envconfig:"FLAGIT_CERT_POLL_MEMBER_LIMIT" default:"120"`
	StoreListMaxSize int           `envconfig:"FLAGIT_STORE_LIST_MAX" default:"100"`
}

func (c CertificationConfig) validate() error {
	if c.RadiusMeters <= 0 {
		return fmt.Errorf("%s must be positive", EnvCertRadiusMeters)
	}
	switch strings.ToLower(strings.TrimSpace(c.StatusStrategy)) {
	case StrategyWindowed, StrategyImmediate:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvCertStatusStrategy, StrategyWindowed, StrategyImmediate, c.StatusStrategy)
	}
	return nil
}

// Strategy returns the normalized status strategy name.
func (c CertificationConfig) Strategy() string {
	strategy := strings.ToLower(strings.TrimSpace(c.StatusStrategy))
	if strategy == "" {
		return StrategyWindowed
	}
	return strategy
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FLAGIT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FLAGIT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FLAGIT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	CertificationTopic string `envconfig:"FLAGIT_PUBSUB_CERTIFICATION_TOPIC" default:"flagit-certification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FLAGIT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FLAGIT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FLAGIT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	// MetricsAddr is where the publisher serves /metrics; empty disables it.
	MetricsAddr string `envconfig:"FLAGIT_OUTBOX_METRICS_ADDR" default:":9091"`
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
