package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/validate"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		Log:         logger.DefaultConfig(),
		OCR:         ocr.DefaultConfig(),
		Parser:      parser.DefaultConfig(),
		Image:       imageproc.DefaultOptions(),
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			MaxUploadMB:       10,
			AllowedExtensions: append([]string(nil), validate.DefaultAllowedExtensions...),
			TimeoutSec:        60,
			ShutdownTimeout:   10,
			MaxConcurrent:     4,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Storage: StorageConfig{
			Driver:      "file",
			OutputDir:   "data/output",
			AutoMigrate: true,
		},
		Batch: BatchConfig{
			Workers:         0,
			ContinueOnError: true,
			WatchSettleMs:   300,
		},
		Queue: QueueConfig{
			RedisURL:    "redis://localhost:6379/0",
			Name:        "extractions",
			Concurrency: 4,
			MaxRetry:    3,
			TimeoutSec:  120,
			SpoolDir:    "data/input",
		},
		Cache: CacheConfig{
			Enabled:        true,
			TTLSeconds:     600,
			CleanupSeconds: 1200,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Log.Level, strings.Join(validLogLevels, ", "))
	}
	validLogFormats := []string{"console", "json"}
	if !contains(validLogFormats, c.Log.Format) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.Log.Format, strings.Join(validLogFormats, ", "))
	}

	validEngines := []string{"tesseract", "vision", "json"}
	if !contains(validEngines, strings.ToLower(c.OCR.Engine)) {
		return fmt.Errorf("invalid ocr engine: %s (must be one of: %s)", c.OCR.Engine, strings.Join(validEngines, ", "))
	}
	if err := validateThreshold(c.OCR.MinConfidence, "ocr.min_confidence"); err != nil {
		return err
	}
	if c.OCR.MaxDetections < 0 {
		return fmt.Errorf("invalid ocr max detections: %d (must not be negative)", c.OCR.MaxDetections)
	}

	if c.Parser.Currency != "" && len(c.Parser.Currency) != 3 {
		return fmt.Errorf("invalid currency code: %q (must be 3 letters)", c.Parser.Currency)
	}
	if c.Parser.Tolerance < 0 {
		return fmt.Errorf("invalid unit price tolerance: %v (must not be negative)", c.Parser.Tolerance)
	}

	if c.Image.MaxWidth < 0 || c.Image.MaxHeight < 0 {
		return fmt.Errorf("invalid image bounds: %dx%d (must not be negative)", c.Image.MaxWidth, c.Image.MaxHeight)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid max concurrent extractions: %d (must be positive)", c.Server.MaxConcurrent)
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.OutputDir == "" {
			return fmt.Errorf("storage.output_dir is required for the file driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be one of: file, postgres)", c.Storage.Driver)
	}

	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch workers: %d (must not be negative)", c.Batch.Workers)
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("invalid queue concurrency: %d (must be positive)", c.Queue.Concurrency)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("invalid cache ttl: %d (must not be negative)", c.Cache.TTLSeconds)
	}
	return nil
}

// MaxUploadBytes converts server.max_upload_mb to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CacheTTL returns the cache expiry as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// CacheCleanup returns the cache cleanup interval as a duration.
func (c *Config) CacheCleanup() time.Duration {
	return time.Duration(c.Cache.CleanupSeconds) * time.Second
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a threshold is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
