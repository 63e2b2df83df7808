// Package config loads service configuration from an optional .env file, an
// optional config.yaml and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port               string        `mapstructure:"port"`
	BearerToken        string        `mapstructure:"bearer_token"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig.MigrationsDir overrides the embedded schema when set.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MigrationsDir  string        `mapstructure:"migrations_dir"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig is optional; an empty URL disables the static-data side cache.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	StaticTTL    time.Duration `mapstructure:"static_ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	WarmupTimeout  time.Duration `mapstructure:"warmup_timeout"`
}

type EnrichmentConfig struct {
	ImageSize string `mapstructure:"image_size"`
	MaxImages int    `mapstructure:"max_images"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel parses Level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

var defaults = map[string]any{
	"server.port":                  "8080",
	"server.bearer_token":          "",
	"server.rate_limit_per_minute": 60,
	"server.shutdown_timeout":      30 * time.Second,
	"database.url":                 "",
	"database.migrations_dir":      "",
	"database.max_conns":           10,
	"database.connect_timeout":     5 * time.Second,
	"redis.url":                    "",
	"redis.static_ttl":             24 * time.Hour,
	"redis.dial_timeout":           2 * time.Second,
	"redis.read_timeout":           500 * time.Millisecond,
	"redis.write_timeout":          500 * time.Millisecond,
	"redis.pool_size":              10,
	"upstream.base_url":            "",
	"upstream.max_attempts":        2,
	"upstream.base_delay":          3 * time.Second,
	"upstream.attempt_timeout":     90 * time.Second,
	"upstream.warmup_timeout":      15 * time.Second,
	"enrichment.image_size":        "640x400",
	"enrichment.max_images":        5,
	"logging.level":                "info",
	"logging.format":               "json",
}

// Load reads configuration from dir. Missing .env and config.yaml files are
// not errors; DATABASE_URL-style environment variables always win.
func Load(dir string) (*Config, error) {
	if err := loadEnvFile(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Every key has a default, so AutomaticEnv also applies to Unmarshal.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// PORT is the conventional platform override.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_PORT") == "" {
		v.Set("server.port", port)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads dir/.env into the process environment without overriding
// variables that are already set.
func loadEnvFile(dir string) error {
	path := ".env"
	if dir != "" {
		path = dir + string(os.PathSeparator) + ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url (DATABASE_URL) is required"))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url (UPSTREAM_BASE_URL) is required"))
	}
	if c.Upstream.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_attempts must be at least 1, got %d", c.Upstream.MaxAttempts))
	}
	if c.Upstream.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("upstream.attempt_timeout must be positive"))
	}
	if c.Upstream.BaseDelay < 0 {
		errs = append(errs, errors.New("upstream.base_delay must not be negative"))
	}
	if c.Server.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute must be at least 1, got %d", c.Server.RateLimitPerMinute))
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("database.max_conns must be at least 1, got %d", c.Database.MaxConns))
	}
	if c.Redis.ReadTimeout < 0 || c.Redis.WriteTimeout < 0 || c.Redis.DialTimeout < 0 {
		errs = append(errs, errors.New("redis timeouts must not be negative"))
	}
	if c.Enrichment.MaxImages < 1 {
		errs = append(errs, fmt.Errorf("enrichment.max_images must be at least 1, got %d", c.Enrichment.MaxImages))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
