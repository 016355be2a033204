package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	PostgresDSN   string // empty: in-memory stores
	RedisURL      string // empty: in-memory session store
	KafkaBrokers  string // empty: no audit mirror
	KafkaTopic    string
	JWTSigningKey string
	RegistryURL   string // online national-ID registry base URL
}

// Redis holds connection tuning for the session store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Policy holds the security thresholds the authenticator enforces. Values are
// the reference policy; deployments override via environment.
type Policy struct {
	MaxLoginAttempts     int
	MaxBiometricAttempts int
	LockoutDuration      time.Duration

	ConfidenceThreshold float64

	MinBlinkCount    int
	MaxBlinkCount    int
	MinBlinkDuration time.Duration

	RegistrationQualityMin    float64
	RegistrationConfidenceMin float64
	RegistrationLivenessMin   float64

	IdentifierLength int
}

// DefaultPolicy returns the reference security policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxLoginAttempts:     5,
		MaxBiometricAttempts: 3,
		LockoutDuration:      15 * time.Minute,

		ConfidenceThreshold: 0.70,

		MinBlinkCount:    2,
		MaxBlinkCount:    8,
		MinBlinkDuration: 100 * time.Millisecond,

		RegistrationQualityMin:    0.70,
		RegistrationConfidenceMin: 0.70,
		RegistrationLivenessMin:   0.75,

		IdentifierLength: 11,
	}
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("CIVIS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	topic := os.Getenv("CIVIS_KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "civis.audit.security"
	}

	signingKey := os.Getenv("CIVIS_JWT_SIGNING_KEY")
	if signingKey == "" {
		// Development default - must be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("CIVIS_POSTGRES_DSN"),
		RedisURL:      os.Getenv("CIVIS_REDIS_URL"),
		KafkaBrokers:  os.Getenv("CIVIS_KAFKA_BROKERS"),
		KafkaTopic:    topic,
		JWTSigningKey: signingKey,
		RegistryURL:   os.Getenv("CIVIS_REGISTRY_URL"),
	}
}

// PolicyFromEnv returns the default policy with environment overrides
// applied. Unset or malformed variables keep the default.
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	p.MaxLoginAttempts = envInt("CIVIS_MAX_LOGIN_ATTEMPTS", p.MaxLoginAttempts)
	p.MaxBiometricAttempts = envInt("CIVIS_MAX_BIOMETRIC_ATTEMPTS", p.MaxBiometricAttempts)
	p.LockoutDuration = envDuration("CIVIS_LOCKOUT_DURATION", p.LockoutDuration)
	p.ConfidenceThreshold = envFloat("CIVIS_CONFIDENCE_THRESHOLD", p.ConfidenceThreshold)
	return p
}

// RedisFromEnv builds Redis connection settings.
func RedisFromEnv() Redis {
	return Redis{
		URL:          os.Getenv("CIVIS_REDIS_URL"),
		PoolSize:     envInt("CIVIS_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("CIVIS_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("CIVIS_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("CIVIS_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("CIVIS_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
