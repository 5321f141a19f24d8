// Package config loads service configuration from the environment and the
// optional YAML seed file describing catalog extensions, roles and policies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Access   AccessConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string
	PostgresDSN string

	// RedisAddr enables the shared Redis decision cache when set.
	RedisAddr     string
	RedisPassword string
}

// AccessConfig holds evaluator tunables
type AccessConfig struct {
	CacheTTL          time.Duration
	CacheMaxEntries   int
	SessionDuration   time.Duration
	SessionSweepEvery time.Duration
	AuditRingSize     int
	SeedFile          string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ACCESSD_HOST", "0.0.0.0"),
			Port:            getEnv("ACCESSD_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ACCESSD_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ACCESSD_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ACCESSD_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ACCESSD_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ACCESSD_HEALTH_PORT", "9090"),
		},
		Store: StoreConfig{
			Backend:       getEnv("ACCESSD_STORE", "memory"),
			PostgresDSN:   getEnv("ACCESSD_POSTGRES_DSN", ""),
			RedisAddr:     getEnv("ACCESSD_REDIS_ADDR", ""),
			RedisPassword: getEnv("ACCESSD_REDIS_PASSWORD", ""),
		},
		Access: AccessConfig{
			CacheTTL:          getEnvDuration("ACCESSD_CACHE_TTL", 5*time.Minute),
			CacheMaxEntries:   getEnvInt("ACCESSD_CACHE_MAX_ENTRIES", 8192),
			SessionDuration:   getEnvDuration("ACCESSD_SESSION_DURATION", 8*time.Hour),
			SessionSweepEvery: getEnvDuration("ACCESSD_SESSION_SWEEP_EVERY", time.Minute),
			AuditRingSize:     getEnvInt("ACCESSD_AUDIT_RING_SIZE", 10000),
			SeedFile:          getEnv("ACCESSD_SEED_FILE", ""),
		},
		LogLevel: getEnv("ACCESSD_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("ACCESSD_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Access.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Access.SessionDuration <= 0 {
		return fmt.Errorf("session duration must be positive")
	}
	if c.Access.SessionSweepEvery <= 0 {
		return fmt.Errorf("session sweep interval must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
