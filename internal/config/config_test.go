package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 45
auth:
  enabled: true
  api_key: secret
scraper:
  workers: 6
  queue_depth: 128
  url_limit: 25
  batch_limit: 5
  max_retries: 2
  user_agent: digest-agent
  fetch_timeout_seconds: 20
  requests_per_second: 2.5
  excluded_patterns: ["beta", "staging"]
summarizer:
  api_key: sk-test
  model: claude-sonnet-4-20250514
  max_tokens: 512
  temperature: 0.2
storage:
  provider: gcs
  gcs_bucket: digests
  prefix: results
db:
  provider: postgres
  dsn: postgres://localhost/sitedigest
pubsub:
  enabled: true
  project_id: proj
  topic_name: jobs.done
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scraper.Workers != 6 || cfg.Scraper.URLLimit != 25 || cfg.Scraper.BatchLimit != 5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if len(cfg.Scraper.ExcludedPatterns) != 2 {
		t.Fatalf("expected excluded patterns loaded: %+v", cfg.Scraper.ExcludedPatterns)
	}
	if cfg.Summarizer.APIKey != "sk-test" || cfg.Summarizer.MaxTokens != 512 {
		t.Fatalf("expected summarizer overrides: %+v", cfg.Summarizer)
	}
	if cfg.Storage.Provider != "gcs" || cfg.Storage.GCSBucket != "digests" {
		t.Fatalf("expected gcs storage: %+v", cfg.Storage)
	}
	if cfg.DB.Provider != "postgres" {
		t.Fatalf("expected postgres db provider: %+v", cfg.DB)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITEDIGEST_SUMMARIZER_API_KEY", "sk-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port = %d", cfg.Server.Port)
	}
	if cfg.Scraper.URLLimit != 50 || cfg.Scraper.BatchLimit != 10 || cfg.Scraper.MaxRetries != 3 {
		t.Fatalf("scraper defaults wrong: %+v", cfg.Scraper)
	}
	if cfg.Storage.Provider != "local" || cfg.DB.Provider != "memory" {
		t.Fatalf("provider defaults wrong: %+v %+v", cfg.Storage, cfg.DB)
	}
	if cfg.Summarizer.APIKey != "sk-env" {
		t.Fatalf("env override not applied: %q", cfg.Summarizer.APIKey)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Scraper:    ScraperConfig{Workers: 1, URLLimit: 50, BatchLimit: 10, MaxRetries: 3},
		Summarizer: SummarizerConfig{APIKey: "sk-test"},
		Storage:    StorageConfig{Provider: "local"},
		DB:         DBConfig{Provider: "memory"},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid workers", func(c *Config) { c.Scraper.Workers = 0 }, "scraper.workers"},
		{"invalid url limit", func(c *Config) { c.Scraper.URLLimit = 0 }, "scraper.url_limit"},
		{"invalid batch limit", func(c *Config) { c.Scraper.BatchLimit = 0 }, "scraper.batch_limit"},
		{"negative retries", func(c *Config) { c.Scraper.MaxRetries = -1 }, "scraper.max_retries"},
		{"missing summarizer key", func(c *Config) { c.Summarizer.APIKey = "" }, "summarizer.api_key"},
		{"auth without key", func(c *Config) { c.Auth = AuthConfig{Enabled: true} }, "auth.api_key"},
		{"gcs without bucket", func(c *Config) { c.Storage = StorageConfig{Provider: "gcs"} }, "storage.gcs_bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"postgres without dsn", func(c *Config) { c.DB = DBConfig{Provider: "postgres"} }, "db.dsn"},
		{"unknown db", func(c *Config) { c.DB.Provider = "mysql" }, "db.provider"},
		{"pubsub missing fields", func(c *Config) { c.PubSub = PubSubConfig{Enabled: true} }, "pubsub.project_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
