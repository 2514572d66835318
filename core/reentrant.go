package core

import (
	"context"
	"sync/atomic"
)

// ReentrantExecutor is an Executor that tracks how deeply the owner
// goroutine is nested inside task executions.
//
// Work submitted by the owner while a task is running is run immediately as
// a nested task frame instead of being appended behind already queued items,
// which preserves the ordering of a plain nested function call. A nested
// frame recovers its own panic and reports it through the returned handle
// or error, so a failing inner call does not unwind the enclosing task.
//
// Because nested calls never wait behind the queue, a task may call
// ExecuteBlocking or BlockUntil on its own executor without deadlocking.
type ReentrantExecutor struct {
	*Executor

	// owner-confined; atomic so Stats can read it from other goroutines
	depth atomic.Int32
}

// NewReentrantExecutor creates a reentrant executor bound to owner.
func NewReentrantExecutor(owner OwnerID, config *ExecutorConfig) (*ReentrantExecutor, error) {
	e, err := newExecutor(owner, "reentrant", config)
	if err != nil {
		return nil, err
	}
	r := &ReentrantExecutor{Executor: e}
	e.hooks.runInline = r.runInline
	e.hooks.enterTask = func() { r.depth.Add(1) }
	e.hooks.exitTask = func() { r.depth.Add(-1) }
	e.hooks.reentrancy = r.ReentrancyDepth
	return r, nil
}

// NewDedicatedReentrantExecutor is NewDedicatedExecutor for the reentrant
// variant.
func NewDedicatedReentrantExecutor(ctx context.Context, config *ExecutorConfig) (*ReentrantExecutor, error) {
	var r *ReentrantExecutor
	_, err := startDedicated(ctx, func(owner OwnerID) (*Executor, error) {
		var err error
		r, err = NewReentrantExecutor(owner, config)
		if err != nil {
			return nil, err
		}
		return r.Executor, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReentrancyDepth returns the number of task frames currently active on the
// owner goroutine.
func (r *ReentrantExecutor) ReentrancyDepth() int {
	return int(r.depth.Load())
}

// RunningTask reports whether the owner goroutine is inside a task.
func (r *ReentrantExecutor) RunningTask() bool {
	return r.depth.Load() > 0
}

// runInline handles owner submissions. The depth counter belongs to the
// owner goroutine, which is why eligibility stays the plain owner check: a
// foreign goroutine submitting while a task runs must still be queued.
func (r *ReentrantExecutor) runInline(item TaskItem) error {
	if r.RunningTask() {
		return r.execute(item, true)
	}
	return r.runBare(item)
}
