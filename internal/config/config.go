// Package config loads the YAML configuration of the ownerloop binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Swind/go-owner-executor/core"
	"gopkg.in/yaml.v3"
)

// Config is the complete ownerloop configuration.
type Config struct {
	Executor  ExecutorConfig  `yaml:"executor"`
	Loop      LoopConfig      `yaml:"loop"`
	Producers ProducersConfig `yaml:"producers"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string          `yaml:"log_format"` // json (zerolog) or console (zap)
}

// ExecutorConfig mirrors the serialisable part of core.ExecutorConfig.
type ExecutorConfig struct {
	Name            string        `yaml:"name"`
	Lanes           int           `yaml:"lanes"`
	Reentrant       bool          `yaml:"reentrant"`
	IdlePark        time.Duration `yaml:"idle_park"`
	HistoryCapacity int           `yaml:"history_capacity"`
}

// LoopConfig controls the simulated tick loop on the owner goroutine.
type LoopConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Ticks        int           `yaml:"ticks"` // 0 runs until interrupted
}

// ProducersConfig controls the goroutines that submit work.
type ProducersConfig struct {
	Count      int     `yaml:"count"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr         string        `yaml:"addr"` // empty disables the endpoint
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Name:            "sim",
			Lanes:           3,
			Reentrant:       true,
			IdlePark:        core.DefaultIdlePark,
			HistoryCapacity: core.DefaultHistoryCapacity,
		},
		Loop: LoopConfig{
			TickInterval: 16 * time.Millisecond,
		},
		Producers: ProducersConfig{
			Count:      4,
			RatePerSec: 50,
			Burst:      5,
		},
		Metrics: MetricsConfig{
			Addr:         ":9090",
			PollInterval: time.Second,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their Default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Executor.Lanes < 0 {
		errs = append(errs, fmt.Errorf("executor.lanes must be >= 0, got %d", cfg.Executor.Lanes))
	}
	if cfg.Executor.IdlePark < 0 {
		errs = append(errs, fmt.Errorf("executor.idle_park must be >= 0, got %s", cfg.Executor.IdlePark))
	}
	if cfg.Loop.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("loop.tick_interval must be > 0, got %s", cfg.Loop.TickInterval))
	}
	if cfg.Loop.Ticks < 0 {
		errs = append(errs, fmt.Errorf("loop.ticks must be >= 0, got %d", cfg.Loop.Ticks))
	}
	if cfg.Producers.Count < 0 {
		errs = append(errs, fmt.Errorf("producers.count must be >= 0, got %d", cfg.Producers.Count))
	}
	if cfg.Producers.RatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("producers.rate_per_sec must be > 0, got %v", cfg.Producers.RatePerSec))
	}
	if cfg.Producers.Burst < 1 {
		errs = append(errs, fmt.Errorf("producers.burst must be >= 1, got %d", cfg.Producers.Burst))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not json or console", cfg.LogFormat))
	}
	return errors.Join(errs...)
}

// CoreConfig builds the executor configuration. Handlers are left nil so
// the caller can attach its own logger and metrics.
func (c *Config) CoreConfig() *core.ExecutorConfig {
	return &core.ExecutorConfig{
		Name:            c.Executor.Name,
		Lanes:           c.Executor.Lanes,
		IdlePark:        c.Executor.IdlePark,
		HistoryCapacity: c.Executor.HistoryCapacity,
	}
}
