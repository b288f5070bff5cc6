package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	HTTPPort      string `envconfig:"HTTP_PORT"      default:":8082"`
	GrpcPort      string `envconfig:"GRPC_PORT"      default:":50052"`
	LogLevel      string `envconfig:"LOG_LEVEL"      default:"info"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS"    default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS"    default:"10"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBAutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE"      default:"false"`

	LockTimeout        time.Duration `envconfig:"LOCK_TIMEOUT"         default:"3s"`
	ReserveMaxAttempts int           `envconfig:"RESERVE_MAX_ATTEMPTS" default:"5"`
	ReserveBackoff     time.Duration `envconfig:"RESERVE_BACKOFF"      default:"10ms"`
	PlaceOrderTimeout  time.Duration `envconfig:"PLACE_ORDER_TIMEOUT"  default:"10s"`

	RedisURL              string        `envconfig:"REDIS_URL"`
	IdempotencyTTL        time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	// IdempotencyPendingTTL bounds how long an unfinished request holds its key.
	IdempotencyPendingTTL time.Duration `envconfig:"IDEMPOTENCY_PENDING_TTL" default:"30s"`

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaOrderTopic string   `envconfig:"KAFKA_ORDER_TOPIC" default:"orders"`

	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST"      default:"20"`
	CORSOrigins        []string `envconfig:"CORS_ORIGINS"          default:"*"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LoadConfig reads .env when present and then the process environment.
func LoadConfig(logger *logrus.Logger) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warnf("Error loading .env file (but continuing): %v", err)
	} else if err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration from environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Infof("Configuration loaded: HTTP Port=%s, GRPC Port=%s, Storage=%s, LogLevel=%s",
		cfg.HTTPPort, cfg.GrpcPort, cfg.StorageDriver, cfg.LogLevel)
	if cfg.RedisURL == "" {
		logger.Info("Configuration loaded: REDIS_URL not set, idempotency keys kept in process memory")
	}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("Configuration loaded: KAFKA_BROKERS not set, order events are logged only")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("configuration error: DATABASE_URL is required when STORAGE_DRIVER=%s", StorageDriverPostgres)
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("configuration error: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.ReserveMaxAttempts < 1 {
		return fmt.Errorf("configuration error: RESERVE_MAX_ATTEMPTS must be at least 1, got %d", c.ReserveMaxAttempts)
	}
	if c.PlaceOrderTimeout <= 0 {
		return fmt.Errorf("configuration error: PLACE_ORDER_TIMEOUT must be positive")
	}
	if c.IdempotencyPendingTTL == 0 {
		c.IdempotencyPendingTTL = 2 * c.PlaceOrderTimeout
	}
	if c.IdempotencyPendingTTL < c.PlaceOrderTimeout {
		return fmt.Errorf("configuration error: IDEMPOTENCY_PENDING_TTL (%s) must not be shorter than PLACE_ORDER_TIMEOUT (%s)",
			c.IdempotencyPendingTTL, c.PlaceOrderTimeout)
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("configuration error: rate limit settings cannot be negative")
	}
	return nil
}
