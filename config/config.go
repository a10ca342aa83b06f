// Package config provides application configuration: environment variables
// with validated defaults, optional .env loading and an optional YAML
// overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all ScholarMesh configuration.
type Config struct {
	ModelProvider string `yaml:"model_provider"`
	ModelName     string `yaml:"model_name"`
	APIKey        string `yaml:"api_key"`

	DBPath string `yaml:"db_path"`

	CheckpointInterval int           `yaml:"checkpoint_interval"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`

	MaxHops       int           `yaml:"max_hops"`
	ContextWindow int           `yaml:"context_window"`
	ToolTimeout   time.Duration `yaml:"tool_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; a YAML file named by
// SCHOLARMESH_CONFIG overlays the defaults before environment variables
// are applied. Precedence: env > yaml > defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("SCHOLARMESH_CONFIG"); path != "" {
		if err := cfg.applyYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ModelProvider:      "anthropic",
		ModelName:          "claude-sonnet-4-20250514",
		DBPath:             "./data/scholarmesh.db",
		CheckpointInterval: 5,
		IdleTimeout:        30 * time.Minute,
		SweepInterval:      5 * time.Minute,
		MaxHops:            8,
		ContextWindow:      10,
		ToolTimeout:        15 * time.Second,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func (c *Config) applyYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ModelProvider = getEnv("SCHOLARMESH_MODEL_PROVIDER", c.ModelProvider)
	c.ModelName = getEnv("SCHOLARMESH_MODEL_NAME", c.ModelName)
	c.APIKey = getEnv("SCHOLARMESH_API_KEY", c.APIKey)
	c.DBPath = getEnv("SCHOLARMESH_DB_PATH", c.DBPath)
	c.CheckpointInterval = getEnvInt("SCHOLARMESH_CHECKPOINT_INTERVAL", c.CheckpointInterval)
	c.IdleTimeout = getEnvDuration("SCHOLARMESH_IDLE_TIMEOUT", c.IdleTimeout)
	c.SweepInterval = getEnvDuration("SCHOLARMESH_SWEEP_INTERVAL", c.SweepInterval)
	c.MaxHops = getEnvInt("SCHOLARMESH_MAX_HOPS", c.MaxHops)
	c.ContextWindow = getEnvInt("SCHOLARMESH_CONTEXT_WINDOW", c.ContextWindow)
	c.ToolTimeout = getEnvDuration("SCHOLARMESH_TOOL_TIMEOUT", c.ToolTimeout)
	c.LogLevel = getEnv("SCHOLARMESH_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("SCHOLARMESH_LOG_FORMAT", c.LogFormat)
}

// Validate checks that all configuration fields carry usable values.
func (c *Config) Validate() error {
	switch c.ModelProvider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("SCHOLARMESH_MODEL_PROVIDER must be anthropic, openai or mock, got %q", c.ModelProvider)
	}
	if c.DBPath == "" {
		return fmt.Errorf("SCHOLARMESH_DB_PATH cannot be empty")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("SCHOLARMESH_CHECKPOINT_INTERVAL must be > 0")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("SCHOLARMESH_IDLE_TIMEOUT must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SCHOLARMESH_SWEEP_INTERVAL must be > 0")
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("SCHOLARMESH_MAX_HOPS must be > 0")
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("SCHOLARMESH_CONTEXT_WINDOW must be > 0")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("SCHOLARMESH_TOOL_TIMEOUT must be > 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("SCHOLARMESH_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
