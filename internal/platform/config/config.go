package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full server configuration.
type Server struct {
	Addr       string
	IssuerName string

	TokenValidity             time.Duration
	AuthorizationCodeValidity time.Duration

	// AccessTokenSigningKey signs access token JWTs (symmetric).
	AccessTokenSigningKey string

	// RequestCodeKey seals the interactive flow's request codes. Must decode
	// to exactly 32 bytes.
	RequestCodeKey string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig configures the optional Redis backing stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional Postgres backing stores.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig configures the optional audit event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Issuance adapts Server to the configuration interfaces the token and
// id-token packages consume.
type Issuance struct{ s Server }

func (s Server) Issuance() Issuance { return Issuance{s: s} }

func (i Issuance) IssuerName() string { return i.s.IssuerName }

func (i Issuance) TokenValidityPeriod() time.Duration { return i.s.TokenValidity }

func (i Issuance) AuthorizationCodeValidityPeriod() time.Duration {
	return i.s.AuthorizationCodeValidity
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:                      envOr("IDSERVER_ADDR", ":8080"),
		IssuerName:                envOr("IDSERVER_ISSUER", "http://localhost:8080"),
		TokenValidity:             envDuration("IDSERVER_TOKEN_VALIDITY", time.Hour),
		AuthorizationCodeValidity: envDuration("IDSERVER_CODE_VALIDITY", 5*time.Minute),
		AccessTokenSigningKey:     envOr("IDSERVER_ACCESS_TOKEN_KEY", ""),
		RequestCodeKey:            envOr("IDSERVER_REQUEST_CODE_KEY", ""),
		Redis: RedisConfig{
			URL:          os.Getenv("IDSERVER_REDIS_URL"),
			PoolSize:     envInt("IDSERVER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("IDSERVER_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("IDSERVER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("IDSERVER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("IDSERVER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("IDSERVER_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("IDSERVER_KAFKA_BROKERS")),
			Topic:   envOr("IDSERVER_KAFKA_TOPIC", "idserver.audit"),
		},
	}

	if cfg.AccessTokenSigningKey == "" {
		// Development fallback; production deployments must set their own.
		cfg.AccessTokenSigningKey = "dev-access-token-key-change-in-production"
	}
	if cfg.RequestCodeKey == "" {
		cfg.RequestCodeKey = "dev-request-code-key-32-bytes-!!"
	}
	if len(cfg.RequestCodeKey) != 32 {
		return Server{}, fmt.Errorf("IDSERVER_REQUEST_CODE_KEY must be exactly 32 bytes, got %d", len(cfg.RequestCodeKey))
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
