// Package config provides configuration management for the relay server.
// It handles loading and parsing the YAML configuration file and provides
// structured access to application settings including the listen port, rate
// limit, per-attempt upstream timeout and quota storage.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
// Provider credentials are intentionally absent: they are read from the
// environment only (one variable per provider).
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port"`

	// Debug enables debug logging and Gin debug mode.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile routes logs to a rotated file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotated log files.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// RateLimitPerMinute caps chat completion requests per client per minute.
	RateLimitPerMinute int `yaml:"rate-limit-per-minute" json:"rate-limit-per-minute"`

	// RequestTimeoutSeconds bounds each upstream provider attempt.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds" json:"request-timeout-seconds"`

	// CloudflareAccountID substitutes the {account_id} placeholder in
	// account-scoped provider URLs. The CLOUDFLARE_ACCOUNT_ID environment
	// variable takes precedence.
	CloudflareAccountID string `yaml:"cloudflare-account-id" json:"cloudflare-account-id"`

	// AllowedOrigins lists CORS origins. Empty means allow any origin.
	AllowedOrigins []string `yaml:"allowed-origins" json:"allowed-origins"`

	// Quota configures the daily per-feature usage gate.
	Quota QuotaConfig `yaml:"quota" json:"quota"`
}

// QuotaConfig defines the usage gate settings.
type QuotaConfig struct {
	// DBPath is the SQLite database file for daily usage counters.
	// Empty disables metering (all requests allowed).
	DBPath string `yaml:"db-path" json:"db-path"`

	// FreeLimits overrides the built-in per-feature daily limits.
	FreeLimits map[string]int `yaml:"free-limits" json:"free-limits"`
}

const (
	defaultPort           = 8787
	defaultRateLimit      = 20
	defaultRequestTimeout = 10
)

// NewDefaultConfig returns a configuration populated with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Port:                  defaultPort,
		RateLimitPerMinute:    defaultRateLimit,
		RequestTimeoutSeconds: defaultRequestTimeout,
	}
}

// LoadConfig reads the YAML file at path. When optional is true a missing
// file yields the default configuration instead of an error.
func LoadConfig(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			cfg := NewDefaultConfig()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.fillDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = defaultRateLimit
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultRequestTimeout
	}
}

// applyEnvOverrides lets deployment environments tune limits without a
// config file, matching the worker-style env surface.
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimitPerMinute = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLOUDFLARE_ACCOUNT_ID")); v != "" {
		c.CloudflareAccountID = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		c.AllowedOrigins = origins
	}
}
