// Package config loads postcms settings from an optional config file,
// POSTCMS_* environment variables and built-in defaults, in that order of
// precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "POSTCMS"

type Config struct {
	DataDir string    `mapstructure:"data_dir"`
	Log     LogConfig `mapstructure:"log"`
	DB      DBConfig  `mapstructure:"db"`
	Media   Media     `mapstructure:"media"`
	Cache   Cache     `mapstructure:"cache"`
	Editor  Editor    `mapstructure:"editor"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DBConfig selects the post store. Driver is sqlite, postgres, mysql or
// mongo. DSN, when set, overrides the individual connection fields.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type Media struct {
	Dir           string        `mapstructure:"dir"`
	BaseURL       string        `mapstructure:"base_url"`
	MaxSize       int64         `mapstructure:"max_size"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	SweepGrace    time.Duration `mapstructure:"sweep_grace"`
}

// Cache configures the rendered-HTML cache. Backend is none, memory or redis.
type Cache struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	MaxItems  int           `mapstructure:"max_items"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisPass string        `mapstructure:"redis_password"`
	RedisDB   int           `mapstructure:"redis_db"`
}

type Editor struct {
	ViewportWidth  float64 `mapstructure:"viewport_width"`
	ViewportHeight float64 `mapstructure:"viewport_height"`
	// MediaHost marks URLs on this host as direct video files.
	MediaHost string `mapstructure:"media_host"`
	// ExternalDir is where blocks are exported for external editing.
	ExternalDir string `mapstructure:"external_dir"`
}

// DefaultDataDir is ~/.local/share/postcms, or ./postcms-data without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "postcms-data"
	}
	return filepath.Join(home, ".local", "share", "postcms")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.path", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 0)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "postcms")
	v.SetDefault("db.sslmode", "")

	v.SetDefault("media.dir", "")
	v.SetDefault("media.base_url", "http://localhost:8080/media")
	v.SetDefault("media.max_size", 50<<20)
	v.SetDefault("media.sweep_schedule", "@daily")
	v.SetDefault("media.sweep_grace", 24*time.Hour)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_items", 512)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("editor.viewport_width", 1280)
	v.SetDefault("editor.viewport_height", 800)
	v.SetDefault("editor.media_host", "")
	v.SetDefault("editor.external_dir", "")
}

// Load reads configuration. An empty path searches for postcms.{yaml,toml,json}
// in the working directory and ~/.config/postcms; a missing file there is
// not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("postcms")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/postcms")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillDerived places unset paths under DataDir.
func (c *Config) fillDerived() {
	if c.DB.Path == "" {
		c.DB.Path = filepath.Join(c.DataDir, "postcms.db")
	}
	if c.Media.Dir == "" {
		c.Media.Dir = filepath.Join(c.DataDir, "media")
	}
	if c.Editor.ExternalDir == "" {
		c.Editor.ExternalDir = filepath.Join(c.DataDir, "edit")
	}
	c.DB.Driver = strings.ToLower(c.DB.Driver)
	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres", "mysql", "mongo":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.Driver == "mongo" && c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn must hold the mongodb URI")
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("config: unsupported cache.backend %q", c.Cache.Backend)
	}
	if c.Media.MaxSize < 0 {
		return fmt.Errorf("config: media.max_size must not be negative")
	}
	if c.Editor.ViewportWidth <= 0 || c.Editor.ViewportHeight <= 0 {
		return fmt.Errorf("config: editor viewport must be positive")
	}
	return nil
}
