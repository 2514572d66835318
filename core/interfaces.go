package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called on the owner goroutine when a task panics.
// The drain loop continues after the handler returns.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context handed to the task
	// - executorName: The name of the executor that ran the task
	// - item: The task that panicked, including its origin goroutine
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, executorName string, item TaskItem, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler logs task panics as errors and keeps going.
type LoggingPanicHandler struct {
	Logger Logger
}

// NewLoggingPanicHandler returns a handler that reports to logger.
func NewLoggingPanicHandler(logger Logger) *LoggingPanicHandler {
	return &LoggingPanicHandler{Logger: logger}
}

// HandlePanic logs the panic with the task identity and stack.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, executorName string, item TaskItem, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("executor", executorName),
		F("task_id", item.ID.String()),
		F("task", item.Name),
		F("lane", item.Lane),
		F("origin", item.Origin.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task execution metrics.
// Implementations can send metrics to monitoring systems (see observability/prometheus).
//
// Methods are called on the hot path and should be non-blocking.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(executorName string, lane int, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(executorName string, panicInfo any)

	// RecordQueueDepth records the pending count after a drain step.
	RecordQueueDepth(executorName string, depth int)

	// RecordTaskRejected records that a submission was refused.
	RecordTaskRejected(executorName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(executorName string, lane int, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(executorName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(executorName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(executorName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a submission is refused. This happens
// when the executor is closed or the task names a lane that does not exist.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(executorName string, reason string, err error)
}

// LoggingRejectedTaskHandler logs rejected submissions as warnings.
type LoggingRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *LoggingRejectedTaskHandler) HandleRejectedTask(executorName string, reason string, err error) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("executor", executorName), F("reason", reason), F("error", err))
}

// =============================================================================
// ExecutorConfig: Configuration for Executor
// =============================================================================

// DefaultIdlePark is how long BlockUntil parks between empty polls when the
// configuration does not say otherwise.
const DefaultIdlePark = 100 * time.Microsecond

// DefaultHistoryCapacity is the number of execution records kept per executor.
const DefaultHistoryCapacity = 100

// ExecutorConfig holds configuration options for Executor.
// Zero values are replaced by defaults when the executor is built.
type ExecutorConfig struct {
	// Name labels logs and metrics. Defaults to the executor type.
	Name string

	// Lanes selects the queue: 0 is the single FIFO, N > 0 a strict
	// priority queue with N lanes.
	Lanes int

	// IdlePark bounds how long BlockUntil and RunLoop park when the
	// queue is empty. BlockUntil also wakes early on a new submission.
	IdlePark time.Duration

	// HistoryCapacity is the size of the execution history ring.
	HistoryCapacity int

	// RunGate decides whether a queued task may run outside a blocking
	// wait. Nil runs everything.
	RunGate func(item TaskItem) bool

	// Logger defaults to NewDefaultLogger().
	Logger Logger

	// PanicHandler defaults to a LoggingPanicHandler on Logger.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler defaults to a LoggingRejectedTaskHandler on Logger.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultExecutorConfig returns a config with default handlers.
func DefaultExecutorConfig() *ExecutorConfig {
	logger := NewDefaultLogger()
	return &ExecutorConfig{
		IdlePark:            DefaultIdlePark,
		HistoryCapacity:     DefaultHistoryCapacity,
		Logger:              logger,
		PanicHandler:        NewLoggingPanicHandler(logger),
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &LoggingRejectedTaskHandler{Logger: logger},
	}
}

func (c *ExecutorConfig) withDefaults() ExecutorConfig {
	var out ExecutorConfig
	if c != nil {
		out = *c
	}
	if out.IdlePark <= 0 {
		out.IdlePark = DefaultIdlePark
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = DefaultHistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = NewLoggingPanicHandler(out.Logger)
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &LoggingRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
