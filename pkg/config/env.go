package config

const EnvPrefix = "WASTELINK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "WASTELINK_APP_ENV"
	EnvPort     = "WASTELINK_APP_PORT"
	EnvLogLevel = "WASTELINK_LOG_LEVEL"

	EnvDBDSN    = "WASTELINK_DB_DSN"
	EnvDBDriver = "WASTELINK_DB_DRIVER"
	EnvDBHost   = "WASTELINK_DB_HOST"
	EnvDBUser   = "WASTELINK_DB_USER"
	EnvDBName   = "WASTELINK_DB_NAME"

	EnvRedisURL = "WASTELINK_REDIS_URL"

	EnvAutoMigrate = "WASTELINK_AUTO_MIGRATE"

	EnvLifecycleLockTimeout  = "WASTELINK_LIFECYCLE_LOCK_TIMEOUT"
	EnvLifecycleMaxAttempts  = "WASTELINK_LIFECYCLE_MAX_ATTEMPTS"
	EnvLifecycleRetryInitial = "WASTELINK_LIFECYCLE_RETRY_INITIAL_INTERVAL"
	EnvLifecycleRetryMax     = "WASTELINK_LIFECYCLE_RETRY_MAX_INTERVAL"

	EnvPubSubLifecycleTopic = "WASTELINK_PUBSUB_LIFECYCLE_TOPIC"
	EnvPubSubLifecycleSub   = "WASTELINK_PUBSUB_LIFECYCLE_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
