package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the privilege engine.
// Key material handling is configured here but loaded once at startup and
// treated as immutable afterwards.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	JWTSigningKey string

	// KeyPath points at the persisted symmetric key (or derived-key salt when
	// KeyPassphrase is set).
	KeyPath       string
	KeyPassphrase string

	// StorageTimeout bounds every store call so no privileged operation
	// suspends indefinitely.
	StorageTimeout time.Duration

	// KafkaBrokers/AuditTopic enable the optional compliance mirror of the
	// audit trail. Empty brokers disable mirroring.
	KafkaBrokers []string
	AuditTopic   string

	// DirectoryCacheTTL bounds staleness of cached staff-directory lookups.
	DirectoryCacheTTL time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("LEXVAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	keyPath := os.Getenv("LEXVAULT_KEY_PATH")
	if keyPath == "" {
		keyPath = "privilege.key"
	}

	jwtSigningKey := os.Getenv("LEXVAULT_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("LEXVAULT_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	topic := os.Getenv("LEXVAULT_AUDIT_TOPIC")
	if topic == "" {
		topic = "lexvault.audit"
	}

	return Server{
		Addr:              addr,
		DatabaseURL:       os.Getenv("LEXVAULT_DATABASE_URL"),
		RedisURL:          os.Getenv("LEXVAULT_REDIS_URL"),
		JWTSigningKey:     jwtSigningKey,
		KeyPath:           keyPath,
		KeyPassphrase:     os.Getenv("LEXVAULT_KEY_PASSPHRASE"),
		StorageTimeout:    durationFromEnv("LEXVAULT_STORAGE_TIMEOUT_MS", 5*time.Second),
		KafkaBrokers:      brokers,
		AuditTopic:        topic,
		DirectoryCacheTTL: durationFromEnv("LEXVAULT_DIRECTORY_CACHE_TTL_MS", 30*time.Second),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
