//nolint:lll
package config

import (
	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
)

// Config represents the complete configuration for leafscan. It covers
// every command (extract, parse, batch, watch, serve, worker) and is loaded
// from configuration files, .env files, environment variables and flags.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`

	Log     logger.Config     `mapstructure:"log" yaml:"log" json:"log"`
	OCR     ocr.Config        `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Parser  parser.Config     `mapstructure:"parser" yaml:"parser" json:"parser"`
	Image   imageproc.Options `mapstructure:"image" yaml:"image" json:"image"`
	Server  ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Storage StorageConfig     `mapstructure:"storage" yaml:"storage" json:"storage"`
	Batch   BatchConfig       `mapstructure:"batch" yaml:"batch" json:"batch"`
	Queue   QueueConfig       `mapstructure:"queue" yaml:"queue" json:"queue"`
	Cache   CacheConfig       `mapstructure:"cache" yaml:"cache" json:"cache"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string          `mapstructure:"host" yaml:"host" json:"host"`
	Port              int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigins       []string        `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	MaxUploadMB       int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	AllowedExtensions []string        `mapstructure:"allowed_extensions" yaml:"allowed_extensions" json:"allowed_extensions"`
	TimeoutSec        int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxConcurrent     int             `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
}

// StorageConfig selects where extractions are persisted.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver" json:"driver"` // file or postgres
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	DSN         string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
}

// BatchConfig contains batch and watch settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"` // 0 = NumCPU
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	WatchSettleMs   int      `mapstructure:"watch_settle_ms" yaml:"watch_settle_ms" json:"watch_settle_ms"`
}

// QueueConfig contains asynchronous job settings.
type QueueConfig struct {
	RedisURL    string `mapstructure:"redis_url" yaml:"redis_url" json:"redis_url"`
	Name        string `mapstructure:"name" yaml:"name" json:"name"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry" yaml:"max_retry" json:"max_retry"`
	TimeoutSec  int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	SpoolDir    string `mapstructure:"spool_dir" yaml:"spool_dir" json:"spool_dir"`
}

// CacheConfig contains the in-memory extraction cache settings.
type CacheConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	TTLSeconds     int  `mapstructure:"ttl_seconds" yaml:"ttl_seconds" json:"ttl_seconds"`
	CleanupSeconds int  `mapstructure:"cleanup_seconds" yaml:"cleanup_seconds" json:"cleanup_seconds"`
}
