package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is the daemon version, overridable at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Overseerr OverseerrConfig `mapstructure:"overseerr"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

// ServerConfig holds the local HTTP API configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// OverseerrConfig holds the remote media server connection settings.
// Credentials are read once at startup and passed explicitly to the client;
// nothing mutates them at runtime.
type OverseerrConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// SyncConfig holds offline-queue drain settings.
type SyncConfig struct {
	DrainCron     string `mapstructure:"drain_cron"`     // periodic fallback schedule
	DrainAttempts int    `mapstructure:"drain_attempts"` // scheduler-level retries per trigger
	RefreshTake   int    `mapstructure:"refresh_take"`   // page size for bulk refresh
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8484,
		},
		Database: DatabaseConfig{
			Path: "./data/luskd.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Overseerr: OverseerrConfig{
			BaseURL: "http://localhost:5055",
			Timeout: 30,
		},
		Sync: SyncConfig{
			DrainCron:     "*/5 * * * *",
			DrainAttempts: 3,
			RefreshTake:   100,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.luskd")
	}

	v.SetEnvPrefix("LUSKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("overseerr.base_url", d.Overseerr.BaseURL)
	v.SetDefault("overseerr.api_key", d.Overseerr.APIKey)
	v.SetDefault("overseerr.timeout", d.Overseerr.Timeout)
	v.SetDefault("sync.drain_cron", d.Sync.DrainCron)
	v.SetDefault("sync.drain_attempts", d.Sync.DrainAttempts)
	v.SetDefault("sync.refresh_take", d.Sync.RefreshTake)
}
