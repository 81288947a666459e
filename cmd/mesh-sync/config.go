package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/meshhive/meshsync/internal/logging"
)

// Config holds all configuration for the mesh-sync CLI.
type Config struct {
	// Catalogs
	DataDir string

	// Device command
	Command        string
	ConnectionArgs []string
	Timeout        time.Duration

	// Daemon
	Interval  time.Duration
	UseExport bool // sync from the YAML config export instead of the text report

	// Observability
	LogLevel    string
	LogFormat   string
	LokiURL     string
	MetricsAddr string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "data",
		Command:   "meshtastic",
		Timeout:   30 * time.Second,
		Interval:  60 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv("MESHSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MESHSYNC_COMMAND"); v != "" {
		cfg.Command = v
	}
	if v := os.Getenv("MESHSYNC_CONNECTION_ARGS"); v != "" {
		cfg.ConnectionArgs = strings.Fields(v)
	}
	if v := os.Getenv("MESHSYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("MESHSYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("MESHSYNC_USE_EXPORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseExport = b
		}
	}
	if v := os.Getenv("MESHSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MESHSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("MESHSYNC_LOKI_URL"); v != "" {
		cfg.LokiURL = v
	}
	if v := os.Getenv("MESHSYNC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	return cfg
}

// LoggingConfig maps CLI config onto the logging package config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Loki: logging.LokiConfig{
			Enabled: c.LokiURL != "",
			URL:     c.LokiURL,
		},
	}
}
