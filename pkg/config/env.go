package config

const EnvPrefix = "FLAGIT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StrategyWindowed  = "windowed"
	StrategyImmediate = "immediate"
)

const (
	EnvAppEnv             = "FLAGIT_APP_ENV"
	EnvPort               = "FLAGIT_APP_PORT"
	EnvDBDSN              = "FLAGIT_DB_DSN"
	EnvDBHost             = "FLAGIT_DB_HOST"
	EnvDBUser             = "FLAGIT_DB_USER"
	EnvDBName             = "FLAGIT_DB_NAME"
	EnvDBPassword         = "FLAGIT_DB_PASSWORD"
	EnvRedisURL           = "FLAGIT_REDIS_URL"
	EnvJWTSecret          = "FLAGIT_JWT_SECRET"
	EnvJWTIssuer          = "FLAGIT_JWT_ISSUER"
	EnvCertRadiusMeters   = "FLAGIT_CERT_RADIUS_METERS"
	EnvCertStatusStrategy = "FLAGIT_CERT_STATUS_STRATEGY"
	EnvCertLockTimeout    = "FLAGIT_CERT_LOCK_TIMEOUT"
	EnvPubSubTopic        = "FLAGIT_PUBSUB_CERTIFICATION_TOPIC"
	EnvGCPProjectID       = "FLAGIT_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
