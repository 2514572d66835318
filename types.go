package ownerexecutor

import (
	"context"

	"github.com/Swind/go-owner-executor/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the ownerexecutor package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskTraits selects the lane and names a task
type TaskTraits = core.TaskTraits

// Executor runs every task on its owner goroutine
type Executor = core.Executor

// ReentrantExecutor lets tasks wait on their own executor
type ReentrantExecutor = core.ReentrantExecutor

// ExecutorConfig configures an executor; nil selects the defaults
type ExecutorConfig = core.ExecutorConfig

// ExecutorStats is a point-in-time snapshot of an executor
type ExecutorStats = core.ExecutorStats

// Handle tracks a submitted task
type Handle = core.Handle

// OwnerID identifies a goroutine
type OwnerID = core.OwnerID

// TaskPanicError reports a recovered task panic
type TaskPanicError = core.TaskPanicError

// LaneDefault is the highest priority lane and the only lane of a FIFO executor.
const LaneDefault = core.LaneDefault

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits = core.DefaultTaskTraits
	TraitsLane        = core.TraitsLane
	TraitsNamed       = core.TraitsNamed
)

// Errors returned by executors and handles.
var (
	ErrLaneOutOfRange = core.ErrLaneOutOfRange
	ErrNoOwner        = core.ErrNoOwner
	ErrNotOwner       = core.ErrNotOwner
	ErrExecutorClosed = core.ErrExecutorClosed
	ErrTaskDiscarded  = core.ErrTaskDiscarded
	ErrTaskPanicked   = core.ErrTaskPanicked
)

// CurrentOwner returns the identity of the calling goroutine.
func CurrentOwner() OwnerID {
	return core.CurrentOwnerID()
}

// New creates an executor owned by owner.
func New(owner OwnerID, config *ExecutorConfig) (*Executor, error) {
	return core.NewExecutor(owner, config)
}

// NewReentrant creates a reentrant executor owned by owner.
func NewReentrant(owner OwnerID, config *ExecutorConfig) (*ReentrantExecutor, error) {
	return core.NewReentrantExecutor(owner, config)
}

// NewDedicated starts a goroutine that owns a new executor and runs its
// loop until ctx ends or the executor is closed.
func NewDedicated(ctx context.Context, config *ExecutorConfig) (*Executor, error) {
	return core.NewDedicatedExecutor(ctx, config)
}

// NewDedicatedReentrant is NewDedicated for the reentrant variant.
func NewDedicatedReentrant(ctx context.Context, config *ExecutorConfig) (*ReentrantExecutor, error) {
	return core.NewDedicatedReentrantExecutor(ctx, config)
}

// Call runs fn on the owner goroutine of e and returns its result.
func Call[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	return core.Call(ctx, e, fn)
}

// GetCurrentExecutor retrieves the running executor from a task context
var GetCurrentExecutor = core.GetCurrentExecutor
