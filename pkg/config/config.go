package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/muhammadchandra19/execution-engine/pkg/postgresql"
	"github.com/muhammadchandra19/execution-engine/pkg/redis"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	_ = godotenv.Load() // .env file is optional

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return nil
}

// Config holds the configuration for the execution engine.
type Config struct {
	Engine     EngineConfig      `envPrefix:"ENGINE_"`
	Kafka      KafkaConfig       `envPrefix:"KAFKA_"`
	Redis      redis.Config      `envPrefix:"REDIS_"`
	Postgres   postgresql.Config `envPrefix:"PG_"`
	RateLimit  RateLimitConfig   `envPrefix:"RATE_LIMIT_"`
	JournalCap int               `env:"JOURNAL_CAPACITY" envDefault:"4096"`

	MigrationDir string `env:"MIGRATION_DIR" envDefault:"migrations"`
}

// EngineConfig holds the core execution engine settings.
type EngineConfig struct {
	Account string `env:"ACCOUNT,required"` // Broker account the engine trades on

	// StaleAfter is how long an order may sit in PendingReconcile before a
	// reconciliation pass treats it as stale. No default on purpose, each
	// deployment has to decide this for its broker.
	StaleAfter time.Duration `env:"STALE_AFTER,required"`

	// RecoveredRetention is how long terminal orders stay in the store after
	// reaching a terminal status, so late duplicate fills are still deduped.
	RecoveredRetention time.Duration `env:"RECOVERED_RETENTION,required"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	SnapshotInterval  time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"10s"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE" envDefault:"1024"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// KafkaConfig holds the configuration for the audit journal publisher.
type KafkaConfig struct {
	Topic   string   `env:"TOPIC" envDefault:"execution-journal"`
	Brokers []string `env:"BROKER,required"`
}

// RateLimitConfig holds the submit throttle settings.
type RateLimitConfig struct {
	Capacity   int           `env:"CAPACITY" envDefault:"10"`
	RefillRate float64       `env:"REFILL_RATE" envDefault:"5"`
	MaxWait    time.Duration `env:"MAX_WAIT" envDefault:"2s"`
}
