// Package config loads process-level configuration from environment
// variables. Runtime-tunable engine settings (concurrency, thresholds,
// cron expressions) live in the database instead — see the Settings store.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Config holds all process-level parameters.
type Config struct {
	// HTTP port of the ops API.
	Port int
	// Log level (debug, info, warn, error) and format (json, text).
	LogLevel  slog.Level
	LogFormat string

	// Root directory for downloaded media.
	DataDir string
	// SQLite database path. Defaults to <DataDir>/trendharvest.db.
	DBPath string

	// Path to the yt-dlp binary ("" means PATH lookup).
	YtDlpBin string
	// Hard bound on one downloader subprocess; 0 disables it.
	DownloadTimeout time.Duration

	// Re-enqueue persisted pending videos at startup.
	ReconcileOnStart bool

	// Graceful shutdown budget.
	ShutdownTimeout time.Duration
}

// Load reads configuration from TH_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Port, err = getEnvInt("TH_PORT", 8090)
	if err != nil {
		return nil, fmt.Errorf("TH_PORT: %w", err)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TH_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("TH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TH_LOG_FORMAT: invalid format %q, expected json or text", cfg.LogFormat)
	}

	cfg.DataDir = getEnvDefault("TH_DATA_DIR", "./data")
	cfg.DBPath = getEnvDefault("TH_DB_PATH", filepath.Join(cfg.DataDir, "trendharvest.db"))
	cfg.YtDlpBin = getEnvDefault("TH_YTDLP_BIN", "")

	cfg.DownloadTimeout, err = getEnvDuration("TH_DOWNLOAD_TIMEOUT", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TH_DOWNLOAD_TIMEOUT: %w", err)
	}

	cfg.ReconcileOnStart, err = getEnvBool("TH_RECONCILE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("TH_RECONCILE_ON_START: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("TH_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TH_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger builds the process logger from the configuration and
// installs it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 15m, 1h)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %q", val)
	}
	return b, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q, expected debug, info, warn or error", level)
	}
}
