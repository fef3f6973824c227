package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/location"
)

// FileEnv names an optional YAML file whose values the environment overrides.
const FileEnv = "INFRASTREET_CONFIG"

type Config struct {
	ServerPort    string `yaml:"server_port"`
	LogLevel      string `yaml:"log_level"`
	DatabaseURL   string `yaml:"database_url"`
	SessionDBPath string `yaml:"session_db_path"`
	RedisURL      string `yaml:"redis_url"`

	Backend struct {
		URL           string        `yaml:"url"`
		Timeout       time.Duration `yaml:"timeout"`
		UploadTimeout time.Duration `yaml:"upload_timeout"`
	} `yaml:"backend"`

	PollInterval    time.Duration  `yaml:"poll_interval"`
	DefaultLocation model.Location `yaml:"default_location"`
}

func Default() *Config {
	cfg := &Config{
		ServerPort:      "3001",
		LogLevel:        "info",
		SessionDBPath:   "./infrastreet.db",
		PollInterval:    5 * time.Second,
		DefaultLocation: location.DefaultFallback,
	}
	cfg.Backend.URL = "http://localhost:8000"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Backend.UploadTimeout = 30 * time.Second
	return cfg
}

func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.SessionDBPath, "SESSION_DB_PATH")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.Backend.URL, "BACKEND_URL")

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Backend.Timeout, "BACKEND_TIMEOUT"},
		{&c.Backend.UploadTimeout, "UPLOAD_TIMEOUT"},
		{&c.PollInterval, "POLL_INTERVAL"},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	floats := []struct {
		dst *float64
		key string
	}{
		{&c.DefaultLocation.Lat, "DEFAULT_LAT"},
		{&c.DefaultLocation.Lng, "DEFAULT_LNG"},
	}
	for _, f := range floats {
		if v := os.Getenv(f.key); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", f.key, err)
			}
			*f.dst = parsed
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT must be set")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 || c.Backend.UploadTimeout <= 0 {
		return fmt.Errorf("backend timeouts must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if err := location.Validate(c.DefaultLocation); err != nil {
		return fmt.Errorf("invalid default location: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
