// Package config loads application configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/workmate/workmate/internal/validator"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration value")
	ErrValidationFailed = errors.New("configuration validation failed")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	RateLimiting RateLimitConfig
	Sync         SyncConfig
	Maintenance  MaintenanceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	BaseURL     string
	Environment Environment
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// SyncConfig holds sync scheduling configuration.
type SyncConfig struct {
	MinIntervalMinutes int
	MaxIntervalMinutes int
	TimeoutSeconds     int
}

// MaintenanceConfig holds nightly maintenance configuration.
type MaintenanceConfig struct {
	SyncLogRetentionDays        int
	CompletedEventRetentionDays int
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.BaseURL = getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port))
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/workmate.db")

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	// Sync configuration
	minInterval, err := getEnvInt("MIN_SYNC_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, fmt.Errorf("%w: MIN_SYNC_INTERVAL_MINUTES: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.MinIntervalMinutes = minInterval

	maxInterval, err := getEnvInt("MAX_SYNC_INTERVAL_MINUTES", 1440)
	if err != nil {
		return nil, fmt.Errorf("%w: MAX_SYNC_INTERVAL_MINUTES: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.MaxIntervalMinutes = maxInterval

	timeout, err := getEnvInt("SYNC_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_TIMEOUT_SECONDS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.TimeoutSeconds = timeout

	// Maintenance configuration
	logRetention, err := getEnvInt("SYNC_LOG_RETENTION_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_LOG_RETENTION_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Maintenance.SyncLogRetentionDays = logRetention

	completedRetention, err := getEnvInt("COMPLETED_EVENT_RETENTION_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("%w: COMPLETED_EVENT_RETENTION_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Maintenance.CompletedEventRetentionDays = completedRetention

	return cfg, nil
}

// Validate checks configured URLs and value ranges.
func (c *Config) Validate(ctx context.Context) error {
	v := validator.New()

	if err := v.ValidateURL(c.Server.BaseURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: BASE_URL: %w", ErrValidationFailed, err)
	}

	if c.Sync.MinIntervalMinutes < 1 || c.Sync.MinIntervalMinutes > c.Sync.MaxIntervalMinutes {
		return fmt.Errorf("%w: sync interval bounds %d..%d", ErrValidationFailed,
			c.Sync.MinIntervalMinutes, c.Sync.MaxIntervalMinutes)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}
