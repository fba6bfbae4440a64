package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "pulse", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.False(t, cfg.SeedDemo)

	require.True(t, cfg.Warmup.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Warmup.Interval)
	assert.Equal(t, 25, cfg.Warmup.BatchSize)
	assert.Equal(t, time.Hour, cfg.Warmup.Staleness)

	assert.Equal(t, 30*time.Second, cfg.Stream.DefaultInterval)
	assert.Equal(t, 10*time.Second, cfg.Stream.MinInterval)
	assert.Equal(t, 300*time.Second, cfg.Stream.MaxInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("STREAM_DEFAULT_INTERVAL", "45s")
	t.Setenv("WARMUP_ENABLED", "false")
	t.Setenv("SEED_DEMO", "true")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, 45*time.Second, cfg.Stream.DefaultInterval)
	assert.False(t, cfg.Warmup.Enabled)
	assert.True(t, cfg.SeedDemo)
}

func TestIsProduction(t *testing.T) {
	assert.False(t, Config{Environment: "development"}.IsProduction())
	assert.True(t, Config{Environment: "Production"}.IsProduction())
}
