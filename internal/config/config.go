// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	SyncTimeoutSec int `mapstructure:"sync_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs discovery, retrieval, and retry behavior.
type ScraperConfig struct {
	Workers          int      `mapstructure:"workers"`
	QueueDepth       int      `mapstructure:"queue_depth"`
	URLLimit         int      `mapstructure:"url_limit"`
	BatchLimit       int      `mapstructure:"batch_limit"`
	MaxRetries       int      `mapstructure:"max_retries"`
	UserAgent        string   `mapstructure:"user_agent"`
	FetchTimeoutSec  int      `mapstructure:"fetch_timeout_seconds"`
	StepTimeoutSec   int      `mapstructure:"step_timeout_seconds"`
	RequestsPerSec   float64  `mapstructure:"requests_per_second"`
	ExcludedPatterns []string `mapstructure:"excluded_patterns"`
	ExcludedExts     []string `mapstructure:"excluded_extensions"`
}

// SummarizerConfig holds Anthropic API settings.
type SummarizerConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and parameterizes the result sink.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational job store.
type DBConfig struct {
	Provider        string `mapstructure:"provider"`
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// PubSubConfig holds metadata for completion event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEDIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv can fill them.
	v.SetDefault("auth.api_key", "")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("server.sync_timeout_seconds", 300)
	v.SetDefault("scraper.workers", 4)
	v.SetDefault("scraper.queue_depth", 64)
	v.SetDefault("scraper.url_limit", 50)
	v.SetDefault("scraper.batch_limit", 10)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.user_agent", "sitedigest-bot/0.1")
	v.SetDefault("scraper.fetch_timeout_seconds", 15)
	v.SetDefault("scraper.step_timeout_seconds", 60)
	v.SetDefault("scraper.requests_per_second", 4.0)
	v.SetDefault("summarizer.model", "claude-sonnet-4-20250514")
	v.SetDefault("summarizer.max_tokens", 1024)
	v.SetDefault("summarizer.timeout_seconds", 30)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "results")
	v.SetDefault("storage.prefix", "results")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.table", "scrape_jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	if c.Scraper.URLLimit <= 0 {
		return fmt.Errorf("scraper.url_limit must be > 0")
	}
	if c.Scraper.BatchLimit <= 0 {
		return fmt.Errorf("scraper.batch_limit must be > 0")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("scraper.max_retries must be >= 0")
	}
	if c.Summarizer.APIKey == "" {
		return fmt.Errorf("summarizer.api_key is required")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	return nil
}

// FetchTimeout returns the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scraper.FetchTimeoutSec) * time.Second
}

// StepTimeout returns the per-step call budget.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.Scraper.StepTimeoutSec) * time.Second
}
