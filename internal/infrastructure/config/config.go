// Package config loads service configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bibbank/origination/pkg/kafka"
	"github.com/bibbank/origination/pkg/postgres"
)

// Store and lock drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Resolver drivers.
const (
	ResolverRules  = "rules"
	ResolverGemini = "gemini"
)

// Config holds the service configuration.
type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	GRPCPort    int    `mapstructure:"GRPC_PORT"`
	HTTPPort    int    `mapstructure:"HTTP_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`

	// StoreDriver selects session, customer and sanction storage.
	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        int    `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSLMODE"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`

	// LockDriver selects the per-session lock implementation.
	LockDriver    string        `mapstructure:"LOCK_DRIVER"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`

	// KafkaBrokers is a comma-separated broker list. Empty disables the
	// outbox relay and the salary document consumer.
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	KafkaEventsTopic   string        `mapstructure:"KAFKA_EVENTS_TOPIC"`
	KafkaSalaryTopic   string        `mapstructure:"KAFKA_SALARY_TOPIC"`
	KafkaConsumerGroup string        `mapstructure:"KAFKA_CONSUMER_GROUP"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`

	ResolverDriver  string        `mapstructure:"RESOLVER_DRIVER"`
	GeminiAPIKey    string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel     string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL   string        `mapstructure:"GEMINI_BASE_URL"`
	ResolverTimeout time.Duration `mapstructure:"RESOLVER_TIMEOUT"`

	RenderDir     string        `mapstructure:"RENDER_DIR"`
	RenderTimeout time.Duration `mapstructure:"RENDER_TIMEOUT"`
	UploadDir     string        `mapstructure:"UPLOAD_DIR"`

	OTLPEndpoint   string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	GRPCReflection bool    `mapstructure:"GRPC_REFLECTION"`
	TLSCertFile    string  `mapstructure:"GRPC_TLS_CERT_FILE"`
	TLSKeyFile     string  `mapstructure:"GRPC_TLS_KEY_FILE"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`

	SeedDemoCustomers bool `mapstructure:"SEED_DEMO_CUSTOMERS"`
}

// Load reads .env if present, then the environment. Environment variables
// win over .env values.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("SERVICE_NAME", "origination-service")
	v.SetDefault("GRPC_PORT", 9090)
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "origination")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "origination")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("RUN_MIGRATIONS", false)

	v.SetDefault("LOCK_DRIVER", DriverMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOCK_TTL", "30s")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "origination.events")
	v.SetDefault("KAFKA_SALARY_TOPIC", "origination.salary-documents")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "origination-service")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "2s")

	v.SetDefault("RESOLVER_DRIVER", ResolverRules)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("RESOLVER_TIMEOUT", "15s")

	v.SetDefault("RENDER_DIR", "./data/sanctions")
	v.SetDefault("RENDER_TIMEOUT", "10s")
	v.SetDefault("UPLOAD_DIR", "./data/uploads")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("GRPC_REFLECTION", false)
	v.SetDefault("GRPC_TLS_CERT_FILE", "")
	v.SetDefault("GRPC_TLS_KEY_FILE", "")
	v.SetDefault("RATE_LIMIT_RPS", 50)

	v.SetDefault("SEED_DEMO_CUSTOMERS", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DBPassword == "" {
			errs = append(errs, errors.New("config: DB_PASSWORD is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.LockDriver {
	case DriverMemory, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("config: unknown LOCK_DRIVER %q", c.LockDriver))
	}
	switch c.ResolverDriver {
	case ResolverRules:
	case ResolverGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("config: GEMINI_API_KEY is required when RESOLVER_DRIVER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown RESOLVER_DRIVER %q", c.ResolverDriver))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("config: GRPC_TLS_CERT_FILE and GRPC_TLS_KEY_FILE must be set together"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("config: RATE_LIMIT_RPS must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Postgres returns the connection settings for pkg/postgres.
func (c Config) Postgres() postgres.Config {
	return postgres.Config{
		Host:             c.DBHost,
		Port:             c.DBPort,
		User:             c.DBUser,
		Password:         c.DBPassword,
		Database:         c.DBName,
		SSLMode:          c.DBSSLMode,
		MaxConns:         c.DBMaxConns,
		ApplicationName:  c.ServiceName,
		StatementTimeout: 5 * time.Second,
	}
}

// Kafka returns the client settings for pkg/kafka.
func (c Config) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:       kafka.ParseBrokers(c.KafkaBrokers),
		ConsumerGroup: c.KafkaConsumerGroup,
	}
}
