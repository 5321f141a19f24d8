package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Access.CacheTTL)
	assert.Equal(t, 8*time.Hour, cfg.Access.SessionDuration)
	assert.Equal(t, 10000, cfg.Access.AuditRingSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ACCESSD_PORT", "9999")
	t.Setenv("ACCESSD_CACHE_TTL", "90s")
	t.Setenv("ACCESSD_CACHE_MAX_ENTRIES", "256")
	t.Setenv("ACCESSD_STORE", "postgres")
	t.Setenv("ACCESSD_POSTGRES_DSN", "postgres://accessd@localhost/accessd")
	t.Setenv("ACCESSD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Access.CacheTTL)
	assert.Equal(t, 256, cfg.Access.CacheMaxEntries)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("ACCESSD_CACHE_TTL", "soon")
	t.Setenv("ACCESSD_AUDIT_RING_SIZE", "lots")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Access.CacheTTL)
	assert.Equal(t, 10000, cfg.Access.AuditRingSize)
}

func TestValidate(t *testing.T) {
	t.Setenv("ACCESSD_STORE", "postgres")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "ACCESSD_POSTGRES_DSN")

	t.Setenv("ACCESSD_STORE", "cassandra")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "unknown store backend")

	t.Setenv("ACCESSD_STORE", "memory")
	t.Setenv("ACCESSD_CACHE_TTL", "-1m")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "cache TTL")
}
