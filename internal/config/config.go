package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverBolt     = "bolt"

	IdempotencyBackendStore = "store"
	IdempotencyBackendRedis = "redis"

	IntegrationsModeMock = "mock"
	IntegrationsModeHTTP = "http"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName      string
	Environment  string
	HTTP         HTTPConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Storage      StorageConfig
	Outbox       OutboxConfig
	Sequence     SequenceConfig
	Idempotency  IdempotencyConfig
	Integrations IntegrationsConfig
	Context      ContextConfig
	Logger       LoggerConfig
	Migrations   MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type StorageConfig struct {
	Driver   string
	BoltPath string
}

type OutboxConfig struct {
	BatchSize       int
	MaxRetries      int
	PollInterval    time.Duration
	ErrorCooldown   time.Duration
	Retention       time.Duration
	CleanupSchedule string
}

// SequenceConfig tunes the retry loop around sale number allocation.
type SequenceConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type IdempotencyConfig struct {
	Backend string
	TTL     time.Duration
}

type IntegrationsConfig struct {
	Mode             string
	CRMURL           string
	InventoryURL     string
	Timeout          time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "sales-service"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "sales"),
			User:            getString("DB_USER", "sales"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "sales-service"),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(getString("STORAGE_DRIVER", StorageDriverPostgres)),
			BoltPath: getString("BOLTDB_PATH", "./data/sales.db"),
		},
		Outbox: OutboxConfig{
			BatchSize:       getInt("OUTBOX_BATCH_SIZE", 50),
			MaxRetries:      getInt("OUTBOX_MAX_RETRIES", 5),
			PollInterval:    getDuration("OUTBOX_POLL_INTERVAL", 10*time.Second),
			ErrorCooldown:   getDuration("OUTBOX_ERROR_COOLDOWN", 30*time.Second),
			Retention:       getDuration("OUTBOX_RETENTION", 7*24*time.Hour),
			CleanupSchedule: getString("OUTBOX_CLEANUP_SCHEDULE", "@every 1h"),
		},
		Sequence: SequenceConfig{
			MaxRetries: getInt("SEQUENCE_MAX_RETRIES", 5),
			BaseDelay:  getDuration("SEQUENCE_BASE_DELAY", 50*time.Millisecond),
			MaxDelay:   getDuration("SEQUENCE_MAX_DELAY", 2*time.Second),
		},
		Idempotency: IdempotencyConfig{
			Backend: strings.ToLower(getString("IDEMPOTENCY_BACKEND", IdempotencyBackendStore)),
			TTL:     getDuration("IDEMPOTENCY_TTL", 7*24*time.Hour),
		},
		Integrations: IntegrationsConfig{
			Mode:             strings.ToLower(getString("INTEGRATIONS_MODE", IntegrationsModeMock)),
			CRMURL:           getString("CRM_URL", "http://localhost:8081"),
			InventoryURL:     getString("INVENTORY_URL", "http://localhost:8082"),
			Timeout:          getDuration("INTEGRATIONS_TIMEOUT", 2*time.Second),
			MaxRetries:       getInt("INTEGRATIONS_MAX_RETRIES", 2),
			RetryBaseDelay:   getDuration("INTEGRATIONS_RETRY_BASE_DELAY", 100*time.Millisecond),
			BreakerThreshold: uint32(getInt("INTEGRATIONS_BREAKER_THRESHOLD", 5)),
			BreakerCooldown:  getDuration("INTEGRATIONS_BREAKER_COOLDOWN", 30*time.Second),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverBolt:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Idempotency.Backend {
	case IdempotencyBackendStore, IdempotencyBackendRedis:
	default:
		return fmt.Errorf("unsupported IDEMPOTENCY_BACKEND %q", c.Idempotency.Backend)
	}
	switch c.Integrations.Mode {
	case IntegrationsModeMock, IntegrationsModeHTTP:
	default:
		return fmt.Errorf("unsupported INTEGRATIONS_MODE %q", c.Integrations.Mode)
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.MaxRetries <= 0 {
		return fmt.Errorf("outbox batch size and max retries must be positive")
	}
	if c.Sequence.MaxRetries < 0 {
		return fmt.Errorf("SEQUENCE_MAX_RETRIES must not be negative")
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
