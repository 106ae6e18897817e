// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrBucketNameRequired is returned when BUCKET_NAME is not set.
	ErrBucketNameRequired = errors.New("config: BUCKET_NAME is required")
	// ErrBackendAPIRequired is returned when BACKEND_API is not set.
	ErrBackendAPIRequired = errors.New("config: BACKEND_API is required")
	// ErrInvalidExpiration is returned when PRESIGNED_URL_EXPIRATION_TIME is not positive.
	ErrInvalidExpiration = errors.New("config: PRESIGNED_URL_EXPIRATION_TIME must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=3001" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Bucket settings
	BucketName      string `env:"BUCKET_NAME, required" json:"bucket_name"`
	BucketEndpoint  string `env:"BUCKET_ENDPOINT" json:"bucket_endpoint,omitempty"`
	BucketRegion    string `env:"BUCKET_REGION, default=ap-southeast-1" json:"bucket_region"`
	BucketPathStyle bool   `env:"BUCKET_PATH_STYLE, default=false" json:"bucket_path_style"`
	AccessKeyID     string `env:"ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Credential validation settings
	BackendAPI    string `env:"BACKEND_API, required" json:"backend_api"`
	BackendSecret string `env:"BACKEND_SECRET" json:"-"` // Masked in JSON

	// Grant settings. PRESIGNED_URL_EXPIRATION_TIME drives both the storage-side
	// grant expiry and the reservation bookkeeping window.
	PresignedURLExpirationSec int `env:"PRESIGNED_URL_EXPIRATION_TIME, default=120" json:"presigned_url_expiration_time"`
	GrantRateLimitPerMinute   int `env:"GRANT_RATE_LIMIT_PER_MINUTE, default=60" json:"grant_rate_limit_per_minute"`
	GrantRateLimitBurst       int `env:"GRANT_RATE_LIMIT_BURST, default=10" json:"grant_rate_limit_burst"`

	// Direct upload settings
	MaximumFilesAllowed int   `env:"MAXIMUM_FILES_ALLOWED, default=10" json:"maximum_files_allowed"`
	MaxUploadMemoryMB   int64 `env:"MAX_UPLOAD_MEMORY_MB, default=32" json:"max_upload_memory_mb"`
	MaxUploadSizeMB     int64 `env:"MAX_UPLOAD_SIZE_MB, default=100" json:"max_upload_size_mb"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads an optional .env file and then configuration from environment
// variables using go-envconfig. Variables already set in the environment win
// over the .env file. It returns an error if required variables are not set.
func Load() (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "BUCKET_NAME") {
			return nil, ErrBucketNameRequired
		}
		if strings.Contains(err.Error(), "BACKEND_API") {
			return nil, ErrBackendAPIRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.BucketName == "" {
		return ErrBucketNameRequired
	}
	if c.BackendAPI == "" {
		return ErrBackendAPIRequired
	}
	if c.PresignedURLExpirationSec <= 0 {
		return ErrInvalidExpiration
	}
	return nil
}

// PresignedURLExpiration returns the grant lifetime as a duration.
func (c *Config) PresignedURLExpiration() time.Duration {
	return time.Duration(c.PresignedURLExpirationSec) * time.Second
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, BucketName: %s, BucketEndpoint: %s, BucketRegion: %s, BackendAPI: %s, PresignedURLExpirationSec: %d, MaximumFilesAllowed: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BucketName,
		c.BucketEndpoint,
		c.BucketRegion,
		c.BackendAPI,
		c.PresignedURLExpirationSec,
		c.MaximumFilesAllowed,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
