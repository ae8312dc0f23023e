// Package config provides configuration management for the orchestrator.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestrator.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Events    EventsConfig    `mapstructure:"events"`
	Isolation IsolationConfig `mapstructure:"isolation"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Router    RouterConfig    `mapstructure:"router"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace isolates queue-group subscribers across deployments/instances.
	Namespace string `mapstructure:"namespace"`
}

// IsolationConfig holds git worktree isolation configuration.
type IsolationConfig struct {
	BasePath        string `mapstructure:"basePath"`        // base directory for worktrees
	DefaultBranch   string `mapstructure:"defaultBranch"`   // fallback base branch when a codebase has none recorded
	CleanupInterval int    `mapstructure:"cleanupInterval"` // seconds between scheduler sweeps
	IdleThreshold   int    `mapstructure:"idleThreshold"`   // seconds of inactivity before an environment is eligible for idle cleanup
	MaxPerCodebase  int    `mapstructure:"maxPerCodebase"`  // LRU cap on live environments per codebase, 0 = unbounded
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// AssistantConfig holds default assistant invocation settings.
type AssistantConfig struct {
	DefaultType    string `mapstructure:"defaultType"`
	TurnTimeoutSec int    `mapstructure:"turnTimeoutSec"`
}

// RouterConfig holds routing/classification settings.
type RouterConfig struct {
	FallbackWorkflow string `mapstructure:"fallbackWorkflow"`
	ClassifierTimeoutSec int `mapstructure:"classifierTimeoutSec"`
}

// TurnTimeout returns the configured assistant turn timeout as a time.Duration.
func (a *AssistantConfig) TurnTimeout() time.Duration {
	return time.Duration(a.TurnTimeoutSec) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ARCHON_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./orchestrator.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "orchestrator")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "orchestrator")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "orchestrator")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")

	v.SetDefault("isolation.basePath", "~/.archon/worktrees")
	v.SetDefault("isolation.defaultBranch", "main")
	v.SetDefault("isolation.cleanupInterval", 300)
	v.SetDefault("isolation.idleThreshold", 86400)
	v.SetDefault("isolation.maxPerCodebase", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("assistant.defaultType", "")
	v.SetDefault("assistant.turnTimeoutSec", 600)

	v.SetDefault("router.fallbackWorkflow", "assist")
	v.SetDefault("router.classifierTimeoutSec", 15)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix ARCHON_ with snake_case naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ARCHON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "ARCHON_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "ARCHON_EVENTS_NAMESPACE")
	_ = v.BindEnv("isolation.basePath", "ARCHON_ISOLATION_BASE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/archon/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for postgres driver")
		}
	} else if cfg.Database.Driver != "sqlite" {
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Isolation.CleanupInterval <= 0 {
		errs = append(errs, "isolation.cleanupInterval must be positive")
	}
	if cfg.Isolation.MaxPerCodebase < 0 {
		errs = append(errs, "isolation.maxPerCodebase must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
