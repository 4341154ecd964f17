package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server" toml:"server"`
	Database  DatabaseConfig  `json:"database" toml:"database"`
	Security  SecurityConfig  `json:"security" toml:"security"`
	RateLimit RateLimitConfig `json:"rate_limit" toml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" toml:"cache"`
	Tracing   TracingConfig   `json:"tracing" toml:"tracing"`
	Scoring   ScoringConfig   `json:"scoring" toml:"scoring"`
	Events    EventsConfig    `json:"events" toml:"events"`
	Log       LogConfig       `json:"log" toml:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `json:"port" toml:"port"`
	Host      string `json:"host" toml:"host"`
	EnableTLS bool   `json:"enable_tls" toml:"enable_tls"`
	CertFile  string `json:"cert_file" toml:"cert_file"`
	KeyFile   string `json:"key_file" toml:"key_file"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size" toml:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" toml:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" toml:"enabled"`
	Rate    int  `json:"rate" toml:"rate"`
	Window  int  `json:"window" toml:"window"` // in seconds
}

// CacheConfig holds the engagement read cache configuration.
// An empty RedisAddr selects the in-memory cache.
type CacheConfig struct {
	Enabled       bool   `json:"enabled" toml:"enabled"`
	RedisAddr     string `json:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" toml:"redis_db"`
	TTL           int    `json:"ttl" toml:"ttl"` // in seconds
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" toml:"enabled"`
	Endpoint    string `json:"endpoint" toml:"endpoint"`
	ServiceName string `json:"service_name" toml:"service_name"`
	Environment string `json:"environment" toml:"environment"`
}

// ScoringConfig holds the dwell timer settings used by the visitor engine.
type ScoringConfig struct {
	DwellThreshold int `json:"dwell_threshold" toml:"dwell_threshold"` // in seconds
	DwellTick      int `json:"dwell_tick" toml:"dwell_tick"`           // in milliseconds
}

// EventsConfig holds engagement event hook configuration.
type EventsConfig struct {
	Enabled bool `json:"enabled" toml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Env string `json:"env" toml:"env"`
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			Host:      getEnv("SERVER_HOST", ""),
			EnableTLS: getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:  getEnv("SERVER_CERT_FILE", ""),
			KeyFile:   getEnv("SERVER_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./card_engagement.db"),
		},
		Security: SecurityConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
		},
		Cache: CacheConfig{
			Enabled:       getEnvBool("CACHE_ENABLED", true),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTL:           getEnvInt("CACHE_TTL", 300),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "card-engagement-api"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Scoring: ScoringConfig{
			DwellThreshold: getEnvInt("DWELL_THRESHOLD", 30),
			DwellTick:      getEnvInt("DWELL_TICK_MS", 1000),
		},
		Events: EventsConfig{
			Enabled: getEnvBool("EVENT_HOOKS_ENABLED", true),
		},
		Log: LogConfig{
			Env: getEnv("LOG_ENV", "production"),
		},
	}

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (they take precedence)
	overrideFromEnv(cfg)

	return cfg, nil
}

// loadFromFile loads configuration from a JSON or TOML file, chosen by
// extension.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	overrideString(&cfg.Server.Port, "SERVER_PORT")
	overrideString(&cfg.Server.Host, "SERVER_HOST")
	overrideBool(&cfg.Server.EnableTLS, "SERVER_ENABLE_TLS")
	overrideString(&cfg.Server.CertFile, "SERVER_CERT_FILE")
	overrideString(&cfg.Server.KeyFile, "SERVER_KEY_FILE")
	overrideString(&cfg.Database.Path, "DATABASE_PATH")
	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	overrideString(&cfg.Security.AllowedOrigins, "ALLOWED_ORIGINS")
	overrideBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	overrideInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	overrideInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")
	overrideBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	overrideString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	overrideInt(&cfg.Cache.RedisDB, "REDIS_DB")
	overrideInt(&cfg.Cache.TTL, "CACHE_TTL")
	overrideBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	overrideString(&cfg.Tracing.Endpoint, "JAEGER_ENDPOINT")
	overrideString(&cfg.Tracing.ServiceName, "TRACING_SERVICE_NAME")
	overrideString(&cfg.Tracing.Environment, "ENVIRONMENT")
	overrideInt(&cfg.Scoring.DwellThreshold, "DWELL_THRESHOLD")
	overrideInt(&cfg.Scoring.DwellTick, "DWELL_TICK_MS")
	overrideBool(&cfg.Events.Enabled, "EVENT_HOOKS_ENABLED")
	overrideString(&cfg.Log.Env, "LOG_ENV")
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func overrideBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func overrideInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

// RateLimitWindow returns the rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.Window) * time.Second
}

// DwellThreshold returns the dwell time that earns the time-on-card bonus.
func (c *Config) DwellThreshold() time.Duration {
	return time.Duration(c.Scoring.DwellThreshold) * time.Second
}

// DwellTick returns the dwell monitor tick interval.
func (c *Config) DwellTick() time.Duration {
	return time.Duration(c.Scoring.DwellTick) * time.Millisecond
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Server.EnableTLS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if c.Scoring.DwellThreshold <= 0 {
		return fmt.Errorf("dwell threshold must be positive")
	}
	if c.Scoring.DwellTick <= 0 {
		return fmt.Errorf("dwell tick must be positive")
	}
	return nil
}
