// Package config loads gxa configuration from gxa.yaml, a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gxp-audit/gxa/pkg/fsutil"
	"github.com/gxp-audit/gxa/pkg/webhook"
)

// FileName is the default configuration file name.
const FileName = "gxa.yaml"

// Config represents the gxa configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	NodeID   int64          `yaml:"node_id" json:"node_id"`
	Webhooks webhook.Config `yaml:"webhooks" json:"webhooks"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn" json:"dsn"`
	Debug  bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// HTTPConfig configures gxa serve.
type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "gxa.db"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		NodeID:   1,
		Webhooks: *webhook.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadAll loads path, then envFile (when present) into the process
// environment, then applies GXA_* overrides, then validates.
func LoadAll(path, envFile string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// envKeys maps environment variables to config keys.
var envKeys = []struct{ env, key string }{
	{"GXA_DATABASE_DRIVER", "database.driver"},
	{"GXA_DATABASE_DSN", "database.dsn"},
	{"GXA_HTTP_ADDR", "http.addr"},
	{"GXA_LOG_LEVEL", "logging.level"},
	{"GXA_LOG_FORMAT", "logging.format"},
	{"GXA_NODE_ID", "node_id"},
}

// ApplyEnv overrides fields from non-empty GXA_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for _, ek := range envKeys {
		if v := getenv(ek.env); v != "" {
			if err := c.Set(ek.key, v); err != nil {
				return fmt.Errorf("%s: %w", ek.env, err)
			}
		}
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node_id must be between 0 and 1023, got %d", c.NodeID)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Keys lists the keys accepted by Get and Set.
func Keys() []string {
	return []string{
		"database.driver", "database.dsn", "database.debug",
		"http.addr",
		"logging.level", "logging.format",
		"node_id",
		"webhooks.enabled", "webhooks.max_retries", "webhooks.retry_delay", "webhooks.async_queue_size",
	}
}

// Get returns the string form of a dotted key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "database.driver":
		return c.Database.Driver, nil
	case "database.dsn":
		return c.Database.DSN, nil
	case "database.debug":
		return strconv.FormatBool(c.Database.Debug), nil
	case "http.addr":
		return c.HTTP.Addr, nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "node_id":
		return strconv.FormatInt(c.NodeID, 10), nil
	case "webhooks.enabled":
		return strconv.FormatBool(c.Webhooks.Enabled), nil
	case "webhooks.max_retries":
		return strconv.Itoa(c.Webhooks.MaxRetries), nil
	case "webhooks.retry_delay":
		return c.Webhooks.RetryDelay.String(), nil
	case "webhooks.async_queue_size":
		return strconv.Itoa(c.Webhooks.AsyncQueueSize), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set parses value into the field named by a dotted key.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "database.driver":
		c.Database.Driver = strings.ToLower(value)
	case "database.dsn":
		c.Database.DSN = value
	case "database.debug":
		c.Database.Debug, err = strconv.ParseBool(value)
	case "http.addr":
		c.HTTP.Addr = value
	case "logging.level":
		c.Logging.Level = strings.ToLower(value)
	case "logging.format":
		c.Logging.Format = strings.ToLower(value)
	case "node_id":
		c.NodeID, err = strconv.ParseInt(value, 10, 64)
	case "webhooks.enabled":
		c.Webhooks.Enabled, err = strconv.ParseBool(value)
	case "webhooks.max_retries":
		c.Webhooks.MaxRetries, err = strconv.Atoi(value)
	case "webhooks.retry_delay":
		var d time.Duration
		d, err = time.ParseDuration(value)
		c.Webhooks.RetryDelay = d
	case "webhooks.async_queue_size":
		c.Webhooks.AsyncQueueSize, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
