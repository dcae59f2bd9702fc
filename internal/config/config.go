package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DBPath    string
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	// Remote knowledge base API settings.
	KBEndpoint        string
	KBAPIKey          string
	KBWorkspaceID     string
	KBDefaultIndexID  string
	KBDefaultCategory string
	KBEmbeddingModel  string
	RetrieveTopK      int
	RetrieveMinScore  float64

	// Sync scheduler settings.
	SyncEnabled    bool
	SyncDelay      time.Duration
	SyncOwnerDelay time.Duration
	SyncInterval   time.Duration
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		DBPath:            getEnv("DB_PATH", "./data/phoebe.db"),
		APIPort:           getEnv("API_PORT", "8080"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		KBEndpoint:        getEnv("KB_ENDPOINT", ""),
		KBAPIKey:          getEnv("KB_API_KEY", ""),
		KBWorkspaceID:     getEnv("KB_WORKSPACE_ID", ""),
		KBDefaultIndexID:  getEnv("KB_DEFAULT_INDEX_ID", ""),
		KBDefaultCategory: getEnv("KB_DEFAULT_CATEGORY_ID", ""),
		KBEmbeddingModel:  getEnv("KB_EMBEDDING_MODEL", "text-embedding-v2"),
	}

	cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg.RetrieveTopK, err = getEnvInt("KB_RETRIEVE_TOP_K", 5)
	if err != nil {
		return nil, err
	}
	if cfg.RetrieveTopK <= 0 {
		return nil, fmt.Errorf("KB_RETRIEVE_TOP_K must be greater than 0")
	}

	minScoreStr := getEnv("KB_RETRIEVE_MIN_SCORE", "0.5")
	cfg.RetrieveMinScore, err = strconv.ParseFloat(minScoreStr, 64)
	if err != nil {
		return nil, fmt.Errorf("KB_RETRIEVE_MIN_SCORE must be a valid number: %w", err)
	}

	enabledStr := getEnv("SYNC_ENABLED", "true")
	cfg.SyncEnabled, err = strconv.ParseBool(enabledStr)
	if err != nil {
		return nil, fmt.Errorf("SYNC_ENABLED must be a boolean: %w", err)
	}

	syncDelayMs, err := getEnvInt("SYNC_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.SyncDelay = time.Duration(syncDelayMs) * time.Millisecond

	ownerDelayMs, err := getEnvInt("SYNC_OWNER_DELAY_MS", 300)
	if err != nil {
		return nil, err
	}
	cfg.SyncOwnerDelay = time.Duration(ownerDelayMs) * time.Millisecond

	// Interval between recurring full sync runs. Zero disables the
	// recurring runs, leaving only the startup run and manual triggers.
	intervalStr := getEnv("SYNC_INTERVAL", "24h")
	cfg.SyncInterval, err = time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("SYNC_INTERVAL must be a valid duration: %w", err)
	}

	// Validate required fields
	if cfg.KBEndpoint == "" {
		return nil, fmt.Errorf("KB_ENDPOINT is required")
	}
	if cfg.KBAPIKey == "" {
		return nil, fmt.Errorf("KB_API_KEY is required")
	}
	if cfg.KBWorkspaceID == "" {
		return nil, fmt.Errorf("KB_WORKSPACE_ID is required")
	}

	// Create the data directory if it doesn't exist (for the DB file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel converts a level name into a slog.Level.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", s)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}
