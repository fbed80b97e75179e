package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EventTransportRedis  = "redis"
	EventTransportPubSub = "pubsub"

	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN    = "PACKFINDERZ_DB_DSN"
	EnvDBDriver = "PACKFINDERZ_DB_DRIVER"
	EnvDBHost   = "PACKFINDERZ_DB_HOST"
	EnvDBUser   = "PACKFINDERZ_DB_USER"
	EnvDBName   = "PACKFINDERZ_DB_NAME"

	EnvRedisURL = "PACKFINDERZ_REDIS_URL"

	EnvJWTSecret  = "PACKFINDERZ_JWT_SECRET"
	EnvJWTIssuer  = "PACKFINDERZ_JWT_ISSUER"
	EnvJWTExpMins = "PACKFINDERZ_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "PACKFINDERZ_USE_SQLITE"
	EnvAutoMigrate = "PACKFINDERZ_AUTO_MIGRATE"

	EnvCancelGraceWindow     = "PACKFINDERZ_CANCEL_GRACE_WINDOW"
	EnvCancelTicketRetention = "PACKFINDERZ_CANCEL_TICKET_RETENTION"

	EnvEventsTransport = "PACKFINDERZ_EVENTS_TRANSPORT"
	EnvGCPProjectID    = "PACKFINDERZ_GCP_PROJECT_ID"

	EnvCORSAllowedOrigins = "PACKFINDERZ_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
