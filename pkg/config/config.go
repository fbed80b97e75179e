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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cancellation CancellationConfig
	Cache        CacheConfig
	Cron         CronConfig
	Events       EventsConfig
	GCP          GCPConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Cancellation.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Events.validate(cfg.GCP); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKFINDERZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PACKFINDERZ_SQLITE_PATH" default:"file:order_progress.db?cache=shared"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the database runs on the embedded driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PACKFINDERZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PACKFINDERZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PACKFINDERZ_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKFINDERZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
}

// CancellationConfig tunes the optimistic cancel window.
type CancellationConfig struct {
	GraceWindow     time.Duration `envconfig:"PACKFINDERZ_CANCEL_GRACE_WINDOW" default:"5s"`
	TicketRetention time.Duration `envconfig:"PACKFINDERZ_CANCEL_TICKET_RETENTION" default:"1h"`
	CommitTimeout   time.Duration `envconfig:"PACKFINDERZ_CANCEL_COMMIT_TIMEOUT" default:"10s"`
}

func (c CancellationConfig) validate() error {
	if c.GraceWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvCancelGraceWindow)
	}
	if c.TicketRetention < c.GraceWindow {
		return fmt.Errorf("%s must be at least %s", EnvCancelTicketRetention, EnvCancelGraceWindow)
	}
	return nil
}

type CacheConfig struct {
	SnapshotTTL time.Duration `envconfig:"PACKFINDERZ_CACHE_SNAPSHOT_TTL" default:"30s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PACKFINDERZ_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"PACKFINDERZ_CRON_LOCK_TTL" default:"2m"`
}

// EventsConfig drives the outbox relay.
type EventsConfig struct {
	ChannelPrefix string        `envconfig:"PACKFINDERZ_EVENTS_CHANNEL_PREFIX" default:"pf:events"`
	BatchSize     int           `envconfig:"PACKFINDERZ_EVENTS_BATCH_SIZE" default:"100"`
	MaxAttempts   int           `envconfig:"PACKFINDERZ_EVENTS_MAX_ATTEMPTS" default:"10"`
	Retention     time.Duration `envconfig:"PACKFINDERZ_EVENTS_RETENTION" default:"720h"`
	Transport     string        `envconfig:"PACKFINDERZ_EVENTS_TRANSPORT" default:"redis"`
}

// UsesPubSub reports whether events leave through GCP Pub/Sub instead of Redis.
func (e EventsConfig) UsesPubSub() bool {
	return strings.EqualFold(e.Transport, EventTransportPubSub)
}

func (e EventsConfig) validate(gcp GCPConfig) error {
	switch strings.ToLower(e.Transport) {
	case EventTransportRedis:
		return nil
	case EventTransportPubSub:
		if strings.TrimSpace(gcp.ProjectID) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvEventsTransport, EventTransportPubSub)
		}
		return nil
	default:
		return fmt.Errorf("%s must be %s or %s, got %q", EnvEventsTransport, EventTransportRedis, EventTransportPubSub, e.Transport)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"PACKFINDERZ_GCP_PROJECT_ID"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PACKFINDERZ_CORS_ALLOWED_ORIGINS" default:"*"`
	MaxAge         int      `envconfig:"PACKFINDERZ_CORS_MAX_AGE" default:"300"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() || db.DSN != "" {
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
