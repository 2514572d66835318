package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Swind/go-owner-executor/core"
	"github.com/Swind/go-owner-executor/internal/config"
	"github.com/Swind/go-owner-executor/logging/zaplog"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"OWNERLOOP_CONFIG"},
		},
		&cli.StringFlag{Name: "name", Usage: "executor name", EnvVars: []string{"OWNERLOOP_NAME"}},
		&cli.IntFlag{Name: "lanes", Usage: "priority lanes (0 for a single FIFO)", EnvVars: []string{"OWNERLOOP_LANES"}},
		&cli.BoolFlag{Name: "reentrant", Usage: "use the reentrant executor", EnvVars: []string{"OWNERLOOP_REENTRANT"}},
		&cli.DurationFlag{Name: "idle-park", Usage: "park duration between empty polls", EnvVars: []string{"OWNERLOOP_IDLE_PARK"}},
		&cli.DurationFlag{Name: "tick-interval", Usage: "simulated frame length", EnvVars: []string{"OWNERLOOP_TICK_INTERVAL"}},
		&cli.IntFlag{Name: "ticks", Usage: "frames to run, 0 for until interrupted", EnvVars: []string{"OWNERLOOP_TICKS"}},
		&cli.IntFlag{Name: "producers", Usage: "producer goroutines", EnvVars: []string{"OWNERLOOP_PRODUCERS"}},
		&cli.Float64Flag{Name: "rate", Usage: "submissions per second per producer", EnvVars: []string{"OWNERLOOP_RATE"}},
		&cli.StringFlag{Name: "metrics-addr", Usage: "listen address for /metrics, empty to disable", EnvVars: []string{"OWNERLOOP_METRICS_ADDR"}},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"OWNERLOOP_LOG_LEVEL"}},
		&cli.StringFlag{Name: "log-format", Usage: "json or console", EnvVars: []string{"OWNERLOOP_LOG_FORMAT"}},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "run the tick loop",
		Flags:  configFlags(),
		Action: runAction,
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "print the effective configuration as YAML",
		Flags:  configFlags(),
		Action: configAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to build logger: %v", err), 1)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The action goroutine becomes the owner of the executor.
	summary, err := runSimulation(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("simulation failed: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "ticks=%d executed=%d panicked=%d rejected=%d discarded=%d\n",
		summary.Ticks, summary.Stats.Executed, summary.Stats.Panicked, summary.Stats.Rejected, summary.Stats.Discarded)
	return nil
}

func configAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// loadConfig reads the file named by --config, if any, and applies flags
// that were set explicitly on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("name") {
		cfg.Executor.Name = c.String("name")
	}
	if c.IsSet("lanes") {
		cfg.Executor.Lanes = c.Int("lanes")
	}
	if c.IsSet("reentrant") {
		cfg.Executor.Reentrant = c.Bool("reentrant")
	}
	if c.IsSet("idle-park") {
		cfg.Executor.IdlePark = c.Duration("idle-park")
	}
	if c.IsSet("tick-interval") {
		cfg.Loop.TickInterval = c.Duration("tick-interval")
	}
	if c.IsSet("ticks") {
		cfg.Loop.Ticks = c.Int("ticks")
	}
	if c.IsSet("producers") {
		cfg.Producers.Count = c.Int("producers")
	}
	if c.IsSet("rate") {
		cfg.Producers.RatePerSec = c.Float64("rate")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (core.Logger, func(), error) {
	if cfg.LogFormat == "console" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		zl, err := zaplog.NewConsole(level)
		if err != nil {
			return nil, nil, err
		}
		return zl, func() { _ = zl.Sync() }, nil
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	zl := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return core.NewZerologLogger(zl), func() {}, nil
}
