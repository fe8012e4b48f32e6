package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion tools
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Import   ImportConfig   `yaml:"import"`
	S3       S3Config       `yaml:"s3"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnLifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig holds the optional Redis settings. An empty URL disables
// progress publishing and Redis-backed import locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis endpoint was configured
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// ImportConfig tunes the CSV ingestion pipeline
type ImportConfig struct {
	BatchSize       int    `yaml:"batch_size"`
	MaxRowErrors    int    `yaml:"max_row_errors"`
	ProgressEvery   int    `yaml:"progress_every"`
	BidderID        string `yaml:"bidder_id"`
	LockEnabled     bool   `yaml:"lock_enabled"`
	LockTTLMinutes  int    `yaml:"lock_ttl_minutes"`
	ProgressTTLHour int    `yaml:"progress_ttl_hours"`
}

// LockTTL returns the import lock TTL as a duration
func (c ImportConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// ProgressTTL returns how long progress snapshots live in Redis
func (c ImportConfig) ProgressTTL() time.Duration {
	return time.Duration(c.ProgressTTLHour) * time.Hour
}

// S3Config holds settings for reading report files from S3
type S3Config struct {
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
	TempDir    string `yaml:"temp_dir"`
}

// MetricsConfig holds Prometheus Pushgateway settings
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Import.BatchSize == 0 {
		cfg.Import.BatchSize = 1000
	}
	if cfg.Import.MaxRowErrors == 0 {
		cfg.Import.MaxRowErrors = 20
	}
	if cfg.Import.ProgressEvery == 0 {
		cfg.Import.ProgressEvery = 50000
	}
	if cfg.Import.LockTTLMinutes == 0 {
		cfg.Import.LockTTLMinutes = 30
	}
	if cfg.Import.ProgressTTLHour == 0 {
		cfg.Import.ProgressTTLHour = 24
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "rtb_ingest"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars.
// A missing config file is not an error: defaults plus environment apply.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RTB_BIDDER_ID"); v != "" {
		cfg.Import.BidderID = v
	}
	if v := os.Getenv("RTB_IMPORT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Import.BatchSize = n
		}
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		cfg.S3.AWSProfile = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
