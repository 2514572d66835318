package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestExecutorConfig_WithDefaults verifies zero values are filled in
// Given: A nil config, an empty config and a partially filled config
// When: withDefaults is applied
// Then: Handlers and limits are always set and explicit values are kept
func TestExecutorConfig_WithDefaults(t *testing.T) {
	var nilCfg *ExecutorConfig
	got := nilCfg.withDefaults()
	assert.Equal(t, DefaultIdlePark, got.IdlePark)
	assert.Equal(t, DefaultHistoryCapacity, got.HistoryCapacity)
	assert.NotNil(t, got.Logger)
	assert.NotNil(t, got.PanicHandler)
	assert.NotNil(t, got.Metrics)
	assert.NotNil(t, got.RejectedTaskHandler)

	logger := NewNoOpLogger()
	partial := &ExecutorConfig{Name: "x", IdlePark: time.Millisecond, Logger: logger}
	got = partial.withDefaults()
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, time.Millisecond, got.IdlePark)
	assert.Same(t, logger, got.Logger)
	assert.Same(t, logger, got.PanicHandler.(*LoggingPanicHandler).Logger)
	assert.Same(t, logger, got.RejectedTaskHandler.(*LoggingRejectedTaskHandler).Logger)
	assert.Nil(t, partial.PanicHandler, "caller's config must not be modified")
}

func TestDefaultExecutorConfig(t *testing.T) {
	cfg := DefaultExecutorConfig()
	assert.Equal(t, 0, cfg.Lanes)
	assert.Nil(t, cfg.RunGate)
	assert.IsType(t, &NilMetrics{}, cfg.Metrics)
	assert.IsType(t, &LoggingPanicHandler{}, cfg.PanicHandler)
}
