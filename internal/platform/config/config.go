// Package config builds runtime configuration from environment variables so
// main stays lean. Static domain tables (admission tiers, specialty
// thresholds) live in their own packages and are not configured here.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration.
type Config struct {
	Addr         string
	IdentitySalt string

	Redis     RedisConfig
	Postgres  PostgresConfig
	AbuseGate AbuseGateConfig
	Retention RetentionConfig

	// AdmissionStoreTimeout bounds shared admission store calls before the
	// local fallback answers.
	AdmissionStoreTimeout time.Duration
}

// RedisConfig configures the shared admission window store. An empty URL
// means no Redis; admission runs on the local store only.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures claim/vote/aggregate persistence. An empty DSN
// selects the in-memory store (dev and tests only).
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// AbuseGateConfig configures the external bot-score provider.
type AbuseGateConfig struct {
	URL            string
	Secret         string
	ScoreThreshold float64
	// Fallback admission budget substituted while the provider is down.
	// A tunable, not a constant.
	FallbackMaxRequests int
	FallbackWindow      time.Duration
}

// RetentionConfig configures the background expiry sweep.
type RetentionConfig struct {
	Interval  time.Duration
	BatchSize int
}

// FromEnv builds a Config from COVERCHECK_* environment variables.
func FromEnv() Config {
	return Config{
		Addr:         envString("COVERCHECK_ADDR", ":8080"),
		IdentitySalt: envString("COVERCHECK_IDENTITY_SALT", "dev-salt-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("COVERCHECK_REDIS_URL"),
			PoolSize:     envInt("COVERCHECK_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("COVERCHECK_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("COVERCHECK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("COVERCHECK_REDIS_READ_TIMEOUT", 100*time.Millisecond),
			WriteTimeout: envDuration("COVERCHECK_REDIS_WRITE_TIMEOUT", 100*time.Millisecond),
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("COVERCHECK_POSTGRES_DSN"),
			MaxOpenConns: envInt("COVERCHECK_POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envInt("COVERCHECK_POSTGRES_MAX_IDLE_CONNS", 5),
		},
		AbuseGate: AbuseGateConfig{
			URL:                 os.Getenv("COVERCHECK_ABUSE_GATE_URL"),
			Secret:              os.Getenv("COVERCHECK_ABUSE_GATE_SECRET"),
			ScoreThreshold:      envFloat("COVERCHECK_ABUSE_GATE_THRESHOLD", 0.5),
			FallbackMaxRequests: envInt("COVERCHECK_ABUSE_FALLBACK_MAX_REQUESTS", 3),
			FallbackWindow:      envDuration("COVERCHECK_ABUSE_FALLBACK_WINDOW", time.Hour),
		},
		Retention: RetentionConfig{
			Interval:  envDuration("COVERCHECK_RETENTION_INTERVAL", time.Hour),
			BatchSize: envInt("COVERCHECK_RETENTION_BATCH_SIZE", 500),
		},
		AdmissionStoreTimeout: envDuration("COVERCHECK_ADMISSION_STORE_TIMEOUT", 50*time.Millisecond),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
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
