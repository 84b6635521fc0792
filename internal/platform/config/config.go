// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration assembled by FromEnv.
type Config struct {
	Server    Server
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Telegram  TelegramConfig
	Relay     RelayConfig
	Leads     LeadsConfig
	RateLimit RateLimitConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For
	// and X-Real-IP. Empty means the client IP is the peer address.
	TrustedProxies []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL            string
	MaxOpenConns   int
	MigrateOnStart bool
}

// RedisConfig configures the idempotency key store. An empty URL falls back
// to process memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the outbox relay. No brokers disables publishing.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	TokenTTL      time.Duration
}

// SMTPConfig enables e-mail notifications when Host is set.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TelegramConfig enables staff notifications through a bot when set.
type TelegramConfig struct {
	NotifyBotToken string
}

type RelayConfig struct {
	Schedule  string
	BatchSize int
}

type LeadsConfig struct {
	IdempotencyTTL     time.Duration
	SignatureTolerance time.Duration
}

// RateLimitConfig budgets public routes per client IP within Window. Zero
// requests leaves a class unlimited.
type RateLimitConfig struct {
	Disabled        bool
	AuthRequests    int
	InboundRequests int
	Window          time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("CRMHUB_ADDR", ":8080"),
			AdminToken:      envString("ADMIN_API_TOKEN", ""),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  envDuration("REQUEST_TIMEOUT", 30*time.Second),
			TrustedProxies:  envList("TRUSTED_PROXIES"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:            envString("DATABASE_URL", ""),
			MaxOpenConns:   envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MigrateOnStart: envBool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           envList("KAFKA_BROKERS"),
			Topic:             envString("KAFKA_TOPIC", "crm.events"),
			Partitions:        int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Auth: AuthConfig{
			// Development default; production deployments must override it.
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        envString("JWT_ISSUER", "crmhub"),
			TokenTTL:      envDuration("JWT_TTL", 12*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     envString("SMTP_HOST", ""),
			Port:     envInt("SMTP_PORT", 587),
			Username: envString("SMTP_USERNAME", ""),
			Password: envString("SMTP_PASSWORD", ""),
			From:     envString("SMTP_FROM", "crm@localhost"),
		},
		Telegram: TelegramConfig{
			NotifyBotToken: envString("TELEGRAM_NOTIFY_BOT_TOKEN", ""),
		},
		Relay: RelayConfig{
			Schedule:  envString("OUTBOX_RELAY_SCHEDULE", "@every 5s"),
			BatchSize: envInt("OUTBOX_RELAY_BATCH", 100),
		},
		Leads: LeadsConfig{
			IdempotencyTTL:     envDuration("LEADS_IDEMPOTENCY_TTL", 24*time.Hour),
			SignatureTolerance: envDuration("LEADS_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Disabled:        envBool("RATE_LIMIT_DISABLED", false),
			AuthRequests:    envInt("RATE_LIMIT_AUTH", 10),
			InboundRequests: envInt("RATE_LIMIT_INBOUND", 300),
			Window:          envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
