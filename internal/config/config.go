// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and cache backends.
const (
	StoreDriverBolt     = "bolt"
	StoreDriverPostgres = "postgres"
	CacheDriverMemory   = "memory"
	CacheDriverRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// BotToken is the Telegram bot token. Required by cmd/server only.
	BotToken string `mapstructure:"BOT_TOKEN"`
	// OperatorChatID is the operator group that receives relayed messages and provider warnings. 0 disables it.
	OperatorChatID int64 `mapstructure:"OPERATOR_CHAT_ID"`
	// DefaultCaptcha is the challenge mode used when the captcha setting is unset (math, button or tguard).
	DefaultCaptcha string `mapstructure:"DEFAULT_CAPTCHA"`

	// StoreDriver selects the durable store: bolt (embedded file) or postgres.
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// DatabaseURL is the Postgres DSN; required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// BoltPath is the bolt database file; used when StoreDriver is bolt.
	BoltPath string `mapstructure:"BOLT_PATH"`

	// CacheDriver selects the ephemeral cache: memory (in-process) or redis.
	CacheDriver string `mapstructure:"CACHE_DRIVER"`
	// RedisAddr is host:port of Redis; required when CacheDriver is redis.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// TGuardCreateTimeout bounds the provider session-create call (e.g. "10s").
	TGuardCreateTimeout string `mapstructure:"TGUARD_CREATE_TIMEOUT"`
	// TGuardPollTimeout bounds the provider status poll (e.g. "5s").
	TGuardPollTimeout string `mapstructure:"TGUARD_POLL_TIMEOUT"`

	// HealthAddr is where the gRPC health service listens (e.g. :8081). Empty disables it.
	HealthAddr string `mapstructure:"HEALTH_ADDR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector; empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the Kafka emitter.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the telemetry worker to push events to.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("OPERATOR_CHAT_ID", 0)
	v.SetDefault("DEFAULT_CAPTCHA", "math")
	v.SetDefault("STORE_DRIVER", StoreDriverBolt)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BOLT_PATH", "./data/storage.db")
	v.SetDefault("CACHE_DRIVER", CacheDriverMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TGUARD_CREATE_TIMEOUT", "10s")
	v.SetDefault("TGUARD_POLL_TIMEOUT", "5s")
	v.SetDefault("HEALTH_ADDR", ":8081")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "relay-gate-verification")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "relay-gate-telemetry-worker")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.CacheDriver = strings.ToLower(strings.TrimSpace(cfg.CacheDriver))

	switch cfg.StoreDriver {
	case StoreDriverBolt:
		if cfg.BoltPath == "" {
			return nil, errors.New("config: BOLT_PATH must be set when STORE_DRIVER=bolt")
		}
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return nil, errors.New("config: STORE_DRIVER must be bolt or postgres")
	}

	switch cfg.CacheDriver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when CACHE_DRIVER=redis")
		}
	default:
		return nil, errors.New("config: CACHE_DRIVER must be memory or redis")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.DefaultCaptcha)) {
	case "math", "button", "tguard":
	default:
		return nil, errors.New("config: DEFAULT_CAPTCHA must be math, button or tguard")
	}

	return &cfg, nil
}

// CreateTimeout parses TGuardCreateTimeout. Returns 10s if unset or invalid.
func (c *Config) CreateTimeout() time.Duration {
	return parseDuration(c.TGuardCreateTimeout, 10*time.Second)
}

// PollTimeout parses TGuardPollTimeout. Returns 5s if unset or invalid.
func (c *Config) PollTimeout() time.Duration {
	return parseDuration(c.TGuardPollTimeout, 5*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
