package lrucache

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/lrucache/resource"
)

// Config is a declarative description of a cache, loadable from the
// environment or a YAML file.
type Config struct {
	Name     string `env:"NAME" yaml:"name"`
	Capacity int    `env:"CAPACITY" envDefault:"1024" yaml:"capacity"`
	// Workers is only used by background caches.
	Workers int `env:"WORKERS" envDefault:"4" yaml:"workers"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" yaml:"log_format"`

	SingleFlight     bool          `env:"SINGLE_FLIGHT" yaml:"single_flight"`
	RetryFailedAfter time.Duration `env:"RETRY_FAILED_AFTER" yaml:"retry_failed_after"`
	MaxParallelLoads int           `env:"MAX_PARALLEL_LOADS" yaml:"max_parallel_loads"`

	MemoryLimitBytes   int64   `env:"MEMORY_LIMIT_BYTES" yaml:"memory_limit_bytes"`
	MaxConcurrentLoads int64   `env:"MAX_CONCURRENT_LOADS" yaml:"max_concurrent_loads"`
	LoadsPerSecond     float64 `env:"LOADS_PER_SECOND" yaml:"loads_per_second"`
	IOLimitBytesPerSec int64   `env:"IO_LIMIT_BYTES_PER_SEC" yaml:"io_limit_bytes_per_sec"`
}

// DefaultConfig returns the defaults also applied by ConfigFromEnv.
func DefaultConfig() Config {
	return Config{
		Capacity:  1024,
		Workers:   4,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ConfigFromEnv reads a Config from environment variables, e.g. with prefix
// "THUMBS_": THUMBS_CAPACITY, THUMBS_WORKERS, THUMBS_LOG_LEVEL.
func ConfigFromEnv(prefix string) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML Config. Missing fields keep their defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for values the constructors would reject.
func (c Config) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, c.Capacity)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkerCount, c.Workers)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// ResourceController builds a controller from the limit fields, or returns
// nil when no limit is set.
func (c Config) ResourceController() *resource.Controller {
	if c.MemoryLimitBytes == 0 && c.MaxConcurrentLoads == 0 && c.LoadsPerSecond == 0 && c.IOLimitBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   c.MemoryLimitBytes,
		MaxConcurrentLoads: c.MaxConcurrentLoads,
		LoadsPerSecond:     c.LoadsPerSecond,
		IOLimitBytesPerSec: c.IOLimitBytesPerSec,
	})
}

// Options converts the config into constructor options. Capacity and
// Workers are passed to the constructors directly.
//
// Every call builds a new resource controller. To share one controller with
// other components, build it once with ResourceController and use
// OptionsWithController.
func (c Config) Options() []Option {
	return c.OptionsWithController(c.ResourceController())
}

// OptionsWithController is Options with the given controller in place of
// one built from the limit fields. rc may be nil.
func (c Config) OptionsWithController(rc *resource.Controller) []Option {
	lvl, err := c.level()
	if err != nil {
		lvl = slog.LevelInfo
	}

	logger := NewTextLogger(lvl)
	if strings.EqualFold(c.LogFormat, "json") {
		logger = NewJSONLogger(lvl)
	}

	opts := []Option{
		WithName(c.Name),
		WithLogger(logger),
	}
	if c.SingleFlight {
		opts = append(opts, WithSingleFlight())
	}
	if c.RetryFailedAfter > 0 {
		opts = append(opts, WithRetryFailedAfter(c.RetryFailedAfter))
	}
	if c.MaxParallelLoads > 0 {
		opts = append(opts, WithMaxParallelLoads(c.MaxParallelLoads))
	}
	if rc != nil {
		opts = append(opts, WithResourceController(rc))
	}
	return opts
}
