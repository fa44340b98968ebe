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
	FeatureFlags FeatureFlagsConfig
	Lifecycle    LifecycleConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Lifecycle.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WASTELINK_APP_ENV" required:"true"`
	Port         string `envconfig:"WASTELINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WASTELINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WASTELINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WASTELINK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WASTELINK_DB_DSN"`
	Driver string `envconfig:"WASTELINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WASTELINK_DB_HOST"`
	LegacyPort     int    `envconfig:"WASTELINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WASTELINK_DB_USER"`
	LegacyPassword string `envconfig:"WASTELINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"WASTELINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"WASTELINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WASTELINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WASTELINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WASTELINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WASTELINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"WASTELINK_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the embedded sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"WASTELINK_REDIS_URL"`
	Address      string        `envconfig:"WASTELINK_REDIS_ADDR"`
	Password     string        `envconfig:"WASTELINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"WASTELINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WASTELINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WASTELINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WASTELINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WASTELINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WASTELINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"WASTELINK_AUTO_MIGRATE" default:"false"`
	DistributedLocks bool `envconfig:"WASTELINK_FEATURE_DISTRIBUTED_LOCKS" default:"false"`
	OpsRoutes        bool `envconfig:"WASTELINK_FEATURE_OPS_ROUTES" default:"false"`
}

// LifecycleConfig bounds lock waits and retries for match lifecycle operations.
type LifecycleConfig struct {
	LockTimeout          time.Duration `envconfig:"WASTELINK_LIFECYCLE_LOCK_TIMEOUT" default:"2s"`
	MaxAttempts          int           `envconfig:"WASTELINK_LIFECYCLE_MAX_ATTEMPTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"WASTELINK_LIFECYCLE_RETRY_INITIAL_INTERVAL" default:"50ms"`
	RetryMaxInterval     time.Duration `envconfig:"WASTELINK_LIFECYCLE_RETRY_MAX_INTERVAL" default:"500ms"`
	GuardTTL             time.Duration `envconfig:"WASTELINK_LIFECYCLE_GUARD_TTL" default:"10s"`
}

func (l LifecycleConfig) validate() error {
	if l.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvLifecycleMaxAttempts)
	}
	if l.LockTimeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvLifecycleLockTimeout)
	}
	if l.RetryMaxInterval > 0 && l.RetryInitialInterval > l.RetryMaxInterval {
		return fmt.Errorf("%s must not exceed %s", EnvLifecycleRetryInitial, EnvLifecycleRetryMax)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WASTELINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WASTELINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WASTELINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LifecycleTopic        string `envconfig:"WASTELINK_PUBSUB_LIFECYCLE_TOPIC" default:"wl-lifecycle-events"`
	LifecycleSubscription string `envconfig:"WASTELINK_PUBSUB_LIFECYCLE_SUBSCRIPTION" default:"wl-lifecycle-events-sub"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WASTELINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WASTELINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WASTELINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval converts the configured poll interval into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"WASTELINK_CRON_INTERVAL" default:"1h"`
	Schedule            string        `envconfig:"WASTELINK_CRON_SCHEDULE"`
	OutboxRetentionDays int           `envconfig:"WASTELINK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"WASTELINK_CRON_DLQ_RETENTION_DAYS" default:"90"`
	ReconcileBatchSize  int           `envconfig:"WASTELINK_CRON_RECONCILE_BATCH_SIZE" default:"200"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
