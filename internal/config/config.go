package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/searchsync/pkg/config"
	"github.com/utafrali/searchsync/pkg/database"
	"github.com/utafrali/searchsync/pkg/tracing"
)

const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"

	BusKafka  = "kafka"
	BusMemory = "memory"
)

// Config holds all configuration for the search sync service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_SYNC_HTTP_PORT" envDefault:"8011"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURL      []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchAPIKey   string   `env:"ELASTICSEARCH_API_KEY"`
	ElasticsearchRefresh  string   `env:"ELASTICSEARCH_REFRESH"`

	AppID       string `env:"SEARCH_APP_ID" envDefault:"search-sync"`
	IndexPrefix string `env:"INDEX_PREFIX"`

	// PostgreSQL (system of record, read-only)
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	// Event bus (kafka or memory)
	EventBus         string   `env:"EVENT_BUS" envDefault:"kafka"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"search-sync"`
	KafkaMaxAttempts int      `env:"KAFKA_MAX_ATTEMPTS" envDefault:"3"`
	DLQPrefix        string   `env:"KAFKA_DLQ_PREFIX" envDefault:"dlq"`
	LocalBusWorkers  int      `env:"LOCAL_BUS_WORKERS" envDefault:"4"`

	// Redis (idempotency store; in-memory when unset)
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Sync tuning
	ChunkSize           int           `env:"CHUNK_SIZE" envDefault:"100"`
	DeleteChunkSize     int           `env:"DELETE_CHUNK_SIZE" envDefault:"1000"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY" envDefault:"1"`
	FullSyncInterval    time.Duration `env:"FULL_SYNC_INTERVAL" envDefault:"0s"`
	FullSyncTimeout     time.Duration `env:"FULL_SYNC_TIMEOUT" envDefault:"10m"`
	EnsureSettings      bool          `env:"ENSURE_INDEX_SETTINGS" envDefault:"true"`

	// Admin endpoints; open when both are empty
	AdminAPIToken  string `env:"ADMIN_API_TOKEN"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`

	// Index call policy
	IndexPolicyEnabled bool          `env:"INDEX_POLICY_ENABLED" envDefault:"false"`
	IndexCallTimeout   time.Duration `env:"INDEX_CALL_TIMEOUT" envDefault:"10s"`
	IndexMaxRetries    uint          `env:"INDEX_MAX_RETRIES" envDefault:"3"`
	IndexRateLimit     float64       `env:"INDEX_RATE_LIMIT" envDefault:"0"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search sync config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid postgres port: %d", c.PostgresPort))
	}

	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURL) == 0 {
			errs = append(errs, errors.New("ELASTICSEARCH_URL is required for the elasticsearch engine"))
		}
	case EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid SEARCH_ENGINE %q: want %s or %s", c.SearchEngine, EngineElasticsearch, EngineMemory))
	}

	switch c.EventBus {
	case BusKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka bus"))
		}
	case BusMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid EVENT_BUS %q: want %s or %s", c.EventBus, BusKafka, BusMemory))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive: %d", c.ChunkSize))
	}
	if c.DeleteChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("DELETE_CHUNK_SIZE must be positive: %d", c.DeleteChunkSize))
	}
	if c.DispatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_CONCURRENCY must be positive: %d", c.DispatchConcurrency))
	}
	if c.FullSyncInterval < 0 {
		errs = append(errs, fmt.Errorf("FULL_SYNC_INTERVAL must not be negative: %s", c.FullSyncInterval))
	}
	if c.FullSyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FULL_SYNC_TIMEOUT must be positive: %s", c.FullSyncTimeout))
	}
	if c.IndexRateLimit < 0 {
		errs = append(errs, fmt.Errorf("INDEX_RATE_LIMIT must not be negative: %v", c.IndexRateLimit))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1]: %v", c.OTELSampleRate))
	}

	return errors.Join(errs...)
}

// Postgres returns the pool configuration of the system of record.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	if c.PostgresMaxConns > 0 {
		pg.MaxConns = c.PostgresMaxConns
	}
	return pg
}

// Redis returns the Redis configuration. ok is false when Redis is not
// configured.
func (c *Config) Redis() (cfg database.RedisConfig, ok bool) {
	if c.RedisAddr == "" {
		return database.RedisConfig{}, false
	}
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}, true
}

// Tracing returns the OpenTelemetry configuration for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}
