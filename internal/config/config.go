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

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrGoogleAPIKeyRequired is returned when a paid package runs without GOOGLE_API_KEY.
	ErrGoogleAPIKeyRequired = errors.New("config: GOOGLE_API_KEY is required for paid packages")
	// ErrInvalidPackage is returned when STUDIO_PACKAGE is not a known package.
	ErrInvalidPackage = errors.New("config: STUDIO_PACKAGE must be one of free, pro1, pro9")
	// ErrInvalidPollInterval is returned when POLL_INTERVAL is not positive.
	ErrInvalidPollInterval = errors.New("config: POLL_INTERVAL must be positive")
	// ErrInvalidChainBreak is returned when CHAIN_BREAK is not restart or abort.
	ErrInvalidChainBreak = errors.New("config: CHAIN_BREAK must be restart or abort")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Google generative API settings
	GoogleAPIKey string        `env:"GOOGLE_API_KEY" json:"-"` // Masked in JSON
	Package      string        `env:"STUDIO_PACKAGE, default=free" json:"package"`
	VideoModel   string        `env:"VEO_MODEL, default=veo-3.0-generate-preview" json:"video_model"`
	TextModel    string        `env:"TEXT_MODEL, default=gemini-2.5-pro" json:"text_model"`
	ImageModel   string        `env:"IMAGE_MODEL, default=gemini-2.5-flash-image-preview" json:"image_model"`
	PollInterval time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval"`

	// Run settings
	ChainBreak   string `env:"CHAIN_BREAK, default=restart" json:"chain_break"` // "restart" or "abort"
	HistoryLimit int    `env:"HISTORY_LIMIT, default=200" json:"history_limit"`

	// State persistence; in-memory when empty
	RedisURL       string `env:"REDIS_URL" json:"redis_url,omitempty"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX, default=promptstudio:" json:"redis_key_prefix"`

	// Task events; disabled when empty
	NATSURL string `env:"NATS_URL" json:"nats_url,omitempty"`

	// Storage settings
	TempDir        string `env:"TEMP_DIR, default=/tmp/promptstudio" json:"temp_dir"`
	ArchiveResults bool   `env:"ARCHIVE_RESULTS, default=false" json:"archive_results"`
	FFmpegPath     string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	// URL prefix of locally archived files; /files when empty
	PublicBaseURL string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// HTTP settings
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	MaxUploadMB     int64         `env:"MAX_UPLOAD_MB, default=20" json:"max_upload_mb"`
	MaxDownloadMB   int64         `env:"MAX_DOWNLOAD_MB, default=512" json:"max_download_mb"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT, default=5m" json:"download_timeout"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if studio state should be kept in Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// NATSEnabled returns true if task events should be published to NATS.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration through the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Package) {
	case "free":
	case "pro1", "pro9":
		if c.GoogleAPIKey == "" {
			return ErrGoogleAPIKeyRequired
		}
	default:
		return ErrInvalidPackage
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	switch strings.ToLower(c.ChainBreak) {
	case "", "restart", "abort":
	default:
		return ErrInvalidChainBreak
	}
	return nil
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
		"Config{Port: %d, Package: %s, VideoModel: %s, TextModel: %s, ImageModel: %s, PollInterval: %s, RedisURL: %s, NATSURL: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Package,
		c.VideoModel,
		c.TextModel,
		c.ImageModel,
		c.PollInterval,
		maskURL(c.RedisURL),
		c.NATSURL,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// maskURL hides the userinfo part of a connection URL.
func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "***" + raw[at:]
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
