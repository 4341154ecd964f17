package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.DwellThreshold() != 30*time.Second {
		t.Errorf("Expected 30s dwell threshold, got %s", cfg.DwellThreshold())
	}
	if cfg.DwellTick() != time.Second {
		t.Errorf("Expected 1s dwell tick, got %s", cfg.DwellTick())
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("Expected 5m cache ttl, got %s", cfg.CacheTTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server": {"port": "9090"}, "cache": {"enabled": true, "redis_addr": "localhost:6379", "ttl": 60}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" || cfg.CacheTTL() != time.Minute {
		t.Errorf("Unexpected cache config: %+v", cfg.Cache)
	}
}

func TestLoadConfig_TOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
port = "7070"

[scoring]
dwell_threshold = 45
dwell_tick = 500

[tracing]
enabled = true
service_name = "engagement-test"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("Expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.DwellThreshold() != 45*time.Second || cfg.DwellTick() != 500*time.Millisecond {
		t.Errorf("Unexpected scoring config: %+v", cfg.Scoring)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.ServiceName != "engagement-test" {
		t.Errorf("Unexpected tracing config: %+v", cfg.Tracing)
	}
	if cfg.Database.Path == "" {
		t.Error("Expected database path default to survive a partial file")
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": "9090"}}`), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("SERVER_PORT", "6060")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("Expected env port 6060, got %s", cfg.Server.Port)
	}
	if cfg.RateLimit.Enabled {
		t.Error("Expected rate limiting disabled by env")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"no database", func(c *Config) { c.Database.Path = "" }},
		{"tls without files", func(c *Config) { c.Server.EnableTLS = true }},
		{"zero rate", func(c *Config) { c.RateLimit.Rate = 0 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero dwell", func(c *Config) { c.Scoring.DwellThreshold = 0 }},
		{"zero tick", func(c *Config) { c.Scoring.DwellTick = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
