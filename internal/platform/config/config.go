package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "apb/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// TxTimeout bounds every write transaction.
	TxTimeout time.Duration
}

// RedisConfig configures the cross-instance live relay. An empty URL runs a
// single instance.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Channel      string
}

// KafkaConfig configures the outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers            []string
	Topic              string
	OutboxPollInterval time.Duration
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TokenTTL   time.Duration
}

// ScopeConfig selects how administrators' scopes are expanded.
type ScopeConfig struct {
	AdminPolicy string
	Delegations string
}

// LiveConfig tunes live connections.
type LiveConfig struct {
	QueueSize        int
	AdmissionTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// RateLimitConfig bounds bulletin writes per user and live connection
// attempts per client IP. A zero limit disables that rule.
type RateLimitConfig struct {
	WritesPerWindow   int
	ConnectsPerWindow int
	Window            time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Scope     ScopeConfig
	Live      LiveConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	e := &envReader{}
	cfg := Config{
		Server: Server{
			Addr:            e.str("APB_ADDR", ":8080"),
			ShutdownTimeout: e.duration("APB_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			TxTimeout:       e.duration("TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			Channel:      e.str("REDIS_LIVE_CHANNEL", "apb:bulletins"),
		},
		Kafka: KafkaConfig{
			Brokers:            e.list("KAFKA_BROKERS"),
			Topic:              e.str("KAFKA_TOPIC", "apb.bulletins"),
			OutboxPollInterval: e.duration("OUTBOX_POLL_INTERVAL", time.Second),
		},
		Auth: AuthConfig{
			// Development default; production deployments must override it.
			SigningKey: e.str("JWT_SIGNING_KEY", devSigningKey),
			Issuer:     e.str("JWT_ISSUER", "apb"),
			Audience:   e.str("JWT_AUDIENCE", "apb"),
			TokenTTL:   e.duration("JWT_TOKEN_TTL", 12*time.Hour),
		},
		Scope: ScopeConfig{
			AdminPolicy: e.str("SCOPE_ADMIN_POLICY", "all"),
			Delegations: e.str("SCOPE_DELEGATIONS", ""),
		},
		Live: LiveConfig{
			QueueSize:        e.integer("LIVE_QUEUE_SIZE", 64),
			AdmissionTimeout: e.duration("LIVE_ADMISSION_TIMEOUT", 10*time.Second),
			WriteTimeout:     e.duration("LIVE_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:     e.duration("LIVE_PING_INTERVAL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			WritesPerWindow:   e.integer("RATE_LIMIT_WRITES", 30),
			ConnectsPerWindow: e.integer("RATE_LIMIT_CONNECTS", 60),
			Window:            e.duration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "text"),
		},
	}
	if e.err != nil {
		return Config{}, e.err
	}
	if cfg.Database.TxTimeout <= 0 {
		return Config{}, fmt.Errorf("TX_TIMEOUT must be positive")
	}
	if cfg.Live.QueueSize <= 0 {
		return Config{}, fmt.Errorf("LIVE_QUEUE_SIZE must be positive")
	}
	if cfg.RateLimit.Window <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return cfg, nil
}

// UsingDevSigningKey reports whether tokens are signed with the built-in key.
func (c Config) UsingDevSigningKey() bool {
	return c.Auth.SigningKey == devSigningKey
}

// envReader keeps the first parse error so FromEnv reads top to bottom.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return v
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return v
}

func (e *envReader) list(key string) []string {
	return platformstrings.SplitList(e.str(key, ""), ",")
}

func (e *envReader) fail(key, raw string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}
