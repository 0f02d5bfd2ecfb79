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
auth:
  enabled: true
  api_key: secret
scraper:
  concurrency: 6
  user_agent: scrapper-test
  queue_depth: 128
  max_pages_default: 10
  host_rps: 2.5
  host_burst: 4
  schedule_tick_seconds: 5
http:
  timeout_seconds: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 4096
robots:
  respect: false
  cache_ttl_minutes: 10
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: raw
  content_type: text/plain
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
	if cfg.Scraper.Concurrency != 6 || cfg.Scraper.HostRPS != 2.5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.Robots.Respect {
		t.Fatal("expected robots.respect override to apply")
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "bucket" {
		t.Fatalf("expected gcs storage overrides: %+v", cfg.Storage)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.ScheduleTick(); got != 5*time.Second {
		t.Fatalf("expected schedule tick 5s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("expected local storage default, got %q", cfg.Storage.Backend)
	}
	if !cfg.Robots.Respect {
		t.Fatal("expected robots respected by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8000},
		Scraper: ScraperConfig{Concurrency: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Storage: StorageConfig{Backend: "local", BaseDir: "data"},
	}

	tests := []struct {
		name string
		cfg  func() Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			},
			want: "server.port",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Scraper.Concurrency = 0
				return c
			},
			want: "scraper.concurrency",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			},
			want: "http.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			},
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			},
			want: "auth.api_key",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			},
			want: "storage.backend",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			},
			want: "storage.gcs_bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg().Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
