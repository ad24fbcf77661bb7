// Package config loads application configuration by layering
// defaults, an optional YAML file, and environment variables.
// Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use the usual
// "500ms" / "5m" notation.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Rollup   RollupConfig   `yaml:"rollup"`
	Tariff   TariffConfig   `yaml:"tariff"`
	Cache    CacheConfig    `yaml:"cache"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type RollupConfig struct {
	// ProgressEvery is the reporting interval in processed
	// (date, floor) combinations.
	ProgressEvery int `yaml:"progress_every"`
	// Watch enables the file watcher that rebuilds summaries
	// when the readings database changes.
	Watch    bool     `yaml:"watch"`
	Debounce Duration `yaml:"debounce"`
}

type TariffConfig struct {
	// CostPerKWh converts consumed kilowatt-hours to cost in the
	// deployment's currency.
	CostPerKWh float64 `yaml:"cost_per_kwh"`
}

type CacheConfig struct {
	// Size bounds the number of cached analytics responses.
	Size int      `yaml:"size"`
	TTL  Duration `yaml:"ttl"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		Database: DatabaseConfig{
			Path: filepath.Join(home, ".wattview", "readings.db"),
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			WriteTimeout: Duration(30 * time.Second),
		},
		Rollup: RollupConfig{
			ProgressEvery: 50,
			Watch:         false,
			Debounce:      Duration(2 * time.Second),
		},
		Tariff: TariffConfig{CostPerKWh: 0.15},
		Cache: CacheConfig{
			Size: 128,
			TTL:  Duration(5 * time.Minute),
		},
	}, nil
}

// Load builds a Config by layering: defaults < file < env. An
// empty path skips the file layer; a missing file at an explicit
// path is an error.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, fmt.Errorf("loading config file: %w", err)
		}
	}
	cfg.loadEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("WATTVIEW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("WATTVIEW_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("WATTVIEW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("WATTVIEW_COST_PER_KWH"); v != "" {
		if cost, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tariff.CostPerKWh = cost
		}
	}
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Rollup.ProgressEvery < 1 {
		return fmt.Errorf("rollup.progress_every must be positive")
	}
	if c.Tariff.CostPerKWh < 0 {
		return fmt.Errorf("tariff.cost_per_kwh must not be negative")
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
