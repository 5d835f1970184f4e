// Package config loads docsql settings from a config file and DOCSQL_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/store"
)

// EnvPrefix prefixes environment overrides: DOCSQL_MONGO_URI sets mongo.uri.
const EnvPrefix = "DOCSQL"

// Config is the full docsql configuration.
type Config struct {
	Mongo     Mongo     `mapstructure:"mongo"`
	Data      Data      `mapstructure:"data"`
	Discovery Discovery `mapstructure:"discovery"`
	Store     Store     `mapstructure:"store"`
	Log       Log       `mapstructure:"log"`
}

// Mongo locates the document database.
type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// Data points at a directory of Extended JSON files served from memory
// instead of a live database.
type Data struct {
	Dir string `mapstructure:"dir"`
}

// Discovery configures schema discovery.
type Discovery struct {
	SampleSize int64  `mapstructure:"sample_size"`
	ScanMethod string `mapstructure:"scan_method"`
	Workers    int    `mapstructure:"workers"`
}

// Store configures schema persistence.
type Store struct {
	Path      string `mapstructure:"path"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Log configures the default logger.
type Log struct {
	Level string `mapstructure:"level"`
}

// defaults registers every key, so environment overrides apply to keys
// absent from the config file.
var defaults = map[string]any{
	"mongo.uri":             "mongodb://localhost:27017",
	"mongo.database":        "",
	"data.dir":              "",
	"discovery.sample_size": discovery.DefaultSampleSize,
	"discovery.scan_method": string(discovery.ScanForward),
	"discovery.workers":     discovery.DefaultWorkers,
	"store.path":            "docsql.db",
	"store.cache_size":      store.DefaultCacheSize,
	"log.level":             "INFO",
}

// Load reads configuration. An empty path looks for an optional docsql.yaml
// (or .json/.toml) in the working directory; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("docsql")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("config loaded", "file", used)
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Discovery.SampleSize <= 0 {
		errs = append(errs, fmt.Errorf("discovery.sample_size must be positive, got %d", c.Discovery.SampleSize))
	}
	if c.Discovery.Workers <= 0 {
		errs = append(errs, fmt.Errorf("discovery.workers must be positive, got %d", c.Discovery.Workers))
	}
	if _, err := discovery.ParseScanMethod(c.Discovery.ScanMethod); err != nil {
		errs = append(errs, fmt.Errorf("discovery.scan_method: %w", err))
	}
	if c.Store.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("store.cache_size must not be negative, got %d", c.Store.CacheSize))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DiscoveryOptions converts the discovery settings.
func (c *Config) DiscoveryOptions() discovery.Options {
	method, _ := discovery.ParseScanMethod(c.Discovery.ScanMethod)
	return discovery.Options{
		SampleSize: c.Discovery.SampleSize,
		Method:     method,
		Workers:    c.Discovery.Workers,
	}
}

// Level parses log.level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
