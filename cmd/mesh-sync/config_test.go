package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "meshtastic", cfg.Command)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.False(t, cfg.UseExport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MESHSYNC_DATA_DIR", "/var/lib/meshsync")
	t.Setenv("MESHSYNC_CONNECTION_ARGS", "--host 192.168.1.5")
	t.Setenv("MESHSYNC_INTERVAL", "5m")
	t.Setenv("MESHSYNC_USE_EXPORT", "true")

	cfg := LoadConfig()
	assert.Equal(t, "/var/lib/meshsync", cfg.DataDir)
	assert.Equal(t, []string{"--host", "192.168.1.5"}, cfg.ConnectionArgs)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.True(t, cfg.UseExport)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MESHSYNC_INTERVAL", "soon")
	t.Setenv("MESHSYNC_USE_EXPORT", "maybe")

	cfg := LoadConfig()
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.False(t, cfg.UseExport)
}
