package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "leafscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LEAFSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v        *viper.Viper
	envFiles []string
}

// NewLoader creates a loader on the global viper instance so flag bindings
// made by the CLI are honored.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.GetViper())
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envFiles: []string{".env"}}
}

// WithEnvFiles replaces the .env files read before the environment is
// consulted. Missing files are skipped.
func (l *Loader) WithEnvFiles(files ...string) *Loader {
	l.envFiles = files
	return l
}

// Load reads configuration from the first leafscan.yaml found on the search
// path, or from configFile when set, then applies .env files and LEAFSCAN_
// environment variables, and validates the result.
func (l *Loader) Load(configFile string) (*Config, error) {
	cfg, err := l.LoadWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) loadEnvFiles() error {
	for _, f := range l.envFiles {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("environment", d.Environment)

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
	l.v.SetDefault("log.time_format", d.Log.TimeFormat)
	l.v.SetDefault("log.output", d.Log.Output)

	l.v.SetDefault("ocr.engine", d.OCR.Engine)
	l.v.SetDefault("ocr.languages", d.OCR.Languages)
	l.v.SetDefault("ocr.min_confidence", d.OCR.MinConfidence)
	l.v.SetDefault("ocr.max_detections", d.OCR.MaxDetections)
	l.v.SetDefault("ocr.credentials_file", d.OCR.CredentialsFile)
	l.v.SetDefault("ocr.detections_file", d.OCR.DetectionsFile)

	l.v.SetDefault("parser.currency", d.Parser.Currency)
	l.v.SetDefault("parser.min_name_length", d.Parser.MinNameLength)
	l.v.SetDefault("parser.max_name_words", d.Parser.MaxNameWords)
	l.v.SetDefault("parser.unit_price_tolerance", d.Parser.Tolerance)
	l.v.SetDefault("parser.known_brands", d.Parser.KnownBrands)
	l.v.SetDefault("parser.brand_max_distance", d.Parser.BrandMaxDistance)
	l.v.SetDefault("parser.discount_offers", d.Parser.DiscountOffers)
	l.v.SetDefault("parser.cluster.anchor_radius", d.Parser.Cluster.AnchorRadius)
	l.v.SetDefault("parser.cluster.max_neighbors", d.Parser.Cluster.MaxNeighbors)
	l.v.SetDefault("parser.cluster.fallback_radius", d.Parser.Cluster.FallbackRadius)
	l.v.SetDefault("parser.cluster.min_fallback_size", d.Parser.Cluster.MinFallbackSize)

	l.v.SetDefault("image.max_width", d.Image.MaxWidth)
	l.v.SetDefault("image.max_height", d.Image.MaxHeight)
	l.v.SetDefault("image.grayscale", d.Image.Grayscale)
	l.v.SetDefault("image.denoise_sigma", d.Image.DenoiseSigma)
	l.v.SetDefault("image.contrast", d.Image.Contrast)
	l.v.SetDefault("image.sharpen_sigma", d.Image.SharpenSigma)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.allowed_extensions", d.Server.AllowedExtensions)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)

	l.v.SetDefault("storage.driver", d.Storage.Driver)
	l.v.SetDefault("storage.output_dir", d.Storage.OutputDir)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)
	l.v.SetDefault("storage.auto_migrate", d.Storage.AutoMigrate)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.include", d.Batch.Include)
	l.v.SetDefault("batch.exclude", d.Batch.Exclude)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
	l.v.SetDefault("batch.watch_settle_ms", d.Batch.WatchSettleMs)

	l.v.SetDefault("queue.redis_url", d.Queue.RedisURL)
	l.v.SetDefault("queue.name", d.Queue.Name)
	l.v.SetDefault("queue.concurrency", d.Queue.Concurrency)
	l.v.SetDefault("queue.max_retry", d.Queue.MaxRetry)
	l.v.SetDefault("queue.timeout_sec", d.Queue.TimeoutSec)
	l.v.SetDefault("queue.spool_dir", d.Queue.SpoolDir)

	l.v.SetDefault("cache.enabled", d.Cache.Enabled)
	l.v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	l.v.SetDefault("cache.cleanup_seconds", d.Cache.CleanupSeconds)
}

// SearchPaths returns the directories searched for leafscan.yaml.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".leafscan"))
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, "leafscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "leafscan"))
	}
	return append(paths, "/etc/leafscan")
}

// GenerateDefault writes the default configuration as YAML to filename
// (leafscan.yaml when empty). An existing file is only replaced when
// overwrite is set.
func GenerateDefault(filename string, overwrite bool) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if !overwrite {
		if _, err := os.Stat(filename); err == nil {
			return fmt.Errorf("config file already exists: %s", filename)
		}
	}
	data, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	header := []byte("# leafscan configuration. Every key can be overridden with " + EnvPrefix + "_<SECTION>_<KEY>.\n")
	return os.WriteFile(filename, append(header, data...), 0o600)
}

// Marshal encodes cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("error encoding config: %w", err)
	}
	return data, nil
}
