package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server is the widgetauth-server process configuration.
type Server struct {
	Addr string
	// RedisURL is a redis:// URL. Empty starts an in-process miniredis,
	// which is only suitable for development.
	RedisURL string

	JWTSecret string
	Issuer    string
	Audience  string

	AuditStream  string
	SQLitePath   string
	KafkaBrokers []string
	KafkaTopic   string

	PolicyFile      string
	CORSOrigins     []string
	TrustedProxies  []string
	ShutdownTimeout time.Duration
}

// ErrMissingSecret is returned when WIDGETAUTH_JWT_SECRET is unset.
var ErrMissingSecret = errors.New("config: WIDGETAUTH_JWT_SECRET is required")

// Load reads a .env file from the working directory if one exists, then
// builds a Server from the environment.
func Load() (*Server, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Server from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Server, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	shutdown, err := time.ParseDuration(get("WIDGETAUTH_SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid WIDGETAUTH_SHUTDOWN_TIMEOUT: %w", err)
	}
	if shutdown <= 0 {
		return nil, errors.New("config: WIDGETAUTH_SHUTDOWN_TIMEOUT must be > 0")
	}

	cfg := &Server{
		Addr:            get("WIDGETAUTH_ADDR", ":8080"),
		RedisURL:        get("WIDGETAUTH_REDIS_URL", ""),
		JWTSecret:       get("WIDGETAUTH_JWT_SECRET", ""),
		Issuer:          get("WIDGETAUTH_ISSUER", "widgetauth"),
		Audience:        get("WIDGETAUTH_AUDIENCE", "widget"),
		AuditStream:     get("WIDGETAUTH_AUDIT_STREAM", "widget:audit"),
		SQLitePath:      get("WIDGETAUTH_AUDIT_SQLITE", "widget-audit.db"),
		KafkaBrokers:    splitList(get("WIDGETAUTH_KAFKA_BROKERS", "")),
		KafkaTopic:      get("WIDGETAUTH_KAFKA_TOPIC", ""),
		PolicyFile:      get("WIDGETAUTH_POLICY_FILE", ""),
		CORSOrigins:     splitList(get("WIDGETAUTH_CORS_ORIGINS", "")),
		TrustedProxies:  splitList(get("WIDGETAUTH_TRUSTED_PROXIES", "")),
		ShutdownTimeout: shutdown,
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("config: WIDGETAUTH_KAFKA_TOPIC is required with WIDGETAUTH_KAFKA_BROKERS")
	}
	return cfg, nil
}

// KafkaEnabled reports whether audit events go to Kafka instead of the Redis
// stream.
func (s *Server) KafkaEnabled() bool {
	return len(s.KafkaBrokers) > 0
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
