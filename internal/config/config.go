package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Lifecycle    LifecycleConfig
	SLA          SLAConfig
	Evidence     EvidenceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// LifecycleConfig bounds request mutations.
type LifecycleConfig struct {
	OperationTimeoutSeconds int
	LockTTLSeconds          int
	MaxConflictRetries      int
}

// SLAConfig drives SLA evaluation and the escalation sweep.
type SLAConfig struct {
	DefaultHours         int
	SweepIntervalSeconds int
	SweepTimeoutSeconds  int
	SweepConcurrency     int
	SweepEnabled         bool
}

// EvidenceConfig controls where completion evidence files are written.
type EvidenceConfig struct {
	Dir           string
	PublicBaseURL string
	MaxFileBytes  int64
	MaxFiles      int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "civic-request-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Lifecycle: LifecycleConfig{
			OperationTimeoutSeconds: getEnvAsInt("LIFECYCLE_OPERATION_TIMEOUT_SECONDS", 10),
			LockTTLSeconds:          getEnvAsInt("LIFECYCLE_LOCK_TTL_SECONDS", 15),
			MaxConflictRetries:      getEnvAsInt("LIFECYCLE_MAX_CONFLICT_RETRIES", 5),
		},
		SLA: SLAConfig{
			DefaultHours:         getEnvAsInt("SLA_DEFAULT_HOURS", 72),
			SweepIntervalSeconds: getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 900),
			SweepTimeoutSeconds:  getEnvAsInt("SLA_SWEEP_TIMEOUT_SECONDS", 120),
			SweepConcurrency:     getEnvAsInt("SLA_SWEEP_CONCURRENCY", 8),
			SweepEnabled:         getEnvAsBool("SLA_SWEEP_ENABLED", true),
		},
		Evidence: EvidenceConfig{
			Dir:           getEnv("EVIDENCE_DIR", "uploads/evidence"),
			PublicBaseURL: getEnv("EVIDENCE_PUBLIC_BASE_URL", "/uploads/evidence"),
			MaxFileBytes:  int64(getEnvAsInt("EVIDENCE_MAX_FILE_BYTES", 10<<20)),
			MaxFiles:      getEnvAsInt("EVIDENCE_MAX_FILES", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// OperationTimeout bounds a single lifecycle mutation including retries.
func (l LifecycleConfig) OperationTimeout() time.Duration {
	return seconds(l.OperationTimeoutSeconds)
}

// LockTTL is how long a per-request lock may be held before Redis expires it.
func (l LifecycleConfig) LockTTL() time.Duration {
	return seconds(l.LockTTLSeconds)
}

// SweepInterval returns the escalation sweep period.
func (s SLAConfig) SweepInterval() time.Duration {
	return seconds(s.SweepIntervalSeconds)
}

// SweepTimeout bounds a single sweep run.
func (s SLAConfig) SweepTimeout() time.Duration {
	return seconds(s.SweepTimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
