package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Swind/go-owner-executor/core"
	"github.com/Swind/go-owner-executor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func testSimConfig(reentrant bool) *config.Config {
	cfg := config.Default()
	cfg.Executor.Reentrant = reentrant
	cfg.Loop.TickInterval = 2 * time.Millisecond
	cfg.Loop.Ticks = 25
	cfg.Producers.Count = 3
	cfg.Producers.RatePerSec = 2000
	cfg.Producers.Burst = 10
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Metrics.PollInterval = time.Millisecond
	return cfg
}

// TestRunSimulation runs a short loop with both executor variants
// Given: A bounded tick count with producers and the metrics endpoint enabled
// When: runSimulation returns
// Then: Every tick ran on the owner and producer work was executed
func TestRunSimulation(t *testing.T) {
	for _, reentrant := range []bool{false, true} {
		name := "owner"
		if reentrant {
			name = "reentrant"
		}
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			out, err := runSimulation(ctx, testSimConfig(reentrant), core.NewNoOpLogger())

			require.NoError(t, err)
			assert.Equal(t, 25, out.Ticks)
			assert.Equal(t, name, out.Stats.Type)
			assert.True(t, out.Stats.Closed)
			// ticks plus the checksum hand-offs at ticks 10 and 20
			assert.GreaterOrEqual(t, out.Stats.Executed, int64(27))
			assert.Zero(t, out.Stats.Panicked)
		})
	}
}

func TestRunSimulation_StopsOnCancel(t *testing.T) {
	cfg := testSimConfig(true)
	cfg.Loop.Ticks = 0
	cfg.Metrics.Addr = ""

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := runSimulation(ctx, cfg, core.NewNoOpLogger())

	require.NoError(t, err)
	assert.Positive(t, out.Ticks)
}

func TestConfigCommand_FlagsOverrideDefaults(t *testing.T) {
	var buf bytes.Buffer
	app := &cli.App{
		Name:     "ownerloop",
		Writer:   &buf,
		Commands: []*cli.Command{configCommand()},
	}

	err := app.Run([]string{"ownerloop", "config", "--lanes", "5", "--ticks", "7", "--log-format", "console"})
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 5, got.Executor.Lanes)
	assert.Equal(t, 7, got.Loop.Ticks)
	assert.Equal(t, "console", got.LogFormat)
	assert.Equal(t, "sim", got.Executor.Name)
}

func TestConfigCommand_RejectsInvalidFlags(t *testing.T) {
	app := &cli.App{
		Name:           "ownerloop",
		Writer:         &bytes.Buffer{},
		ErrWriter:      &bytes.Buffer{},
		ExitErrHandler: func(*cli.Context, error) {},
		Commands:       []*cli.Command{configCommand()},
	}

	err := app.Run([]string{"ownerloop", "config", "--lanes", "-2"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := config.Default()
		cfg.LogFormat = format
		logger, sync, err := newLogger(cfg)
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
		sync()
	}
}
