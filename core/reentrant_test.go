package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOwnedReentrant(t *testing.T, cfg *ExecutorConfig) *ReentrantExecutor {
	t.Helper()
	r, err := NewReentrantExecutor(CurrentOwnerID(), cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNewReentrantExecutor_RequiresOwner(t *testing.T) {
	_, err := NewReentrantExecutor(0, testConfig())
	assert.ErrorIs(t, err, ErrNoOwner)
}

// TestReentrantExecutor_DepthTracking verifies the counter follows nested frames
// Given: A queued task that submits a nested task from the owner
// When: The owner drains the queue
// Then: Depth is 1 in the outer task, 2 in the nested one, and 0 afterwards
func TestReentrantExecutor_DepthTracking(t *testing.T) {
	// Arrange
	r := newOwnedReentrant(t, testConfig())
	var outerDepth, innerDepth int
	var innerRanBeforeOuterReturned bool

	fromProducer(func() {
		_, err := r.Submit(func(ctx context.Context) {
			outerDepth = r.ReentrancyDepth()
			innerDone := false
			_, err := r.Submit(func(ctx context.Context) {
				innerDepth = r.ReentrancyDepth()
				innerDone = true
			})
			assert.NoError(t, err)
			innerRanBeforeOuterReturned = innerDone
		})
		assert.NoError(t, err)
	})

	// Act
	assert.False(t, r.RunningTask())
	r.DrainAll()

	// Assert
	assert.Equal(t, 1, outerDepth)
	assert.Equal(t, 2, innerDepth)
	assert.True(t, innerRanBeforeOuterReturned, "nested submission should run before the outer task continues")
	assert.Equal(t, 0, r.ReentrancyDepth())
	assert.False(t, r.RunningTask())
}

// TestReentrantExecutor_DepthRestoredAfterPanic verifies the deferred decrement
func TestReentrantExecutor_DepthRestoredAfterPanic(t *testing.T) {
	r := newOwnedReentrant(t, testConfig())

	fromProducer(func() {
		_, err := r.Submit(func(ctx context.Context) { panic("outer") })
		assert.NoError(t, err)
	})

	assert.Equal(t, 1, r.DrainAll())
	assert.Equal(t, 0, r.ReentrancyDepth())
}

// TestReentrantExecutor_NestedFailureResolvesHandle verifies nested panics stay contained
// Given: A task that submits a nested task which panics
// When: The outer task runs on the owner
// Then: The nested handle carries the panic and the outer task keeps running
func TestReentrantExecutor_NestedFailureResolvesHandle(t *testing.T) {
	// Arrange
	r := newOwnedReentrant(t, testConfig())
	var nestedErr error
	var outerFinished bool

	fromProducer(func() {
		_, err := r.Submit(func(ctx context.Context) {
			h, err := r.Submit(func(ctx context.Context) { panic("inner") })
			assert.NoError(t, err)
			nestedErr = h.Err()
			outerFinished = true
		})
		assert.NoError(t, err)
	})

	// Act
	r.DrainAll()

	// Assert
	assert.ErrorIs(t, nestedErr, ErrTaskPanicked)
	assert.True(t, outerFinished)
	assert.Equal(t, 0, r.Stats().ReentrancyDepth)
}

// TestReentrantExecutor_NestedExecuteBlocking verifies a task can wait on its own executor
// Given: Unrelated tasks already queued ahead, and a task that needs a result
// When: The task submits the producer of that result and calls ExecuteBlocking to read it
// Then: Everything completes within a bounded time without deadlock
func TestReentrantExecutor_NestedExecuteBlocking(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r, err := NewDedicatedReentrantExecutor(ctx, testConfig())
	require.NoError(t, err)
	defer r.Close()

	release := make(chan struct{})
	var queuedAheadRan atomic.Int32

	// Hold the owner so the next submissions pile up in the queue.
	_, err = r.Submit(func(ctx context.Context) { <-release })
	require.NoError(t, err)
	for range 3 {
		_, err := r.Submit(func(ctx context.Context) { queuedAheadRan.Add(1) })
		require.NoError(t, err)
	}

	var result int
	outer, err := r.Submit(func(taskCtx context.Context) {
		produced := 0
		_, err := r.Submit(func(ctx context.Context) { produced = 42 })
		assert.NoError(t, err)

		err = r.ExecuteBlocking(taskCtx, func(ctx context.Context) {
			result = produced
		})
		assert.NoError(t, err)
	})
	require.NoError(t, err)
	close(release)

	// Act
	err = outer.Wait(ctx)

	// Assert
	require.NoError(t, err, "nested ExecuteBlocking deadlocked")
	got, err := Call(ctx, r.Executor, func(ctx context.Context) (int, error) { return result, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, int32(3), queuedAheadRan.Load())
}

// TestReentrantExecutor_NestedBlockUntil verifies a task can wait for work from another goroutine
// Given: A task that hands work to a helper goroutine which submits the answer back
// When: The task blocks with BlockUntil for that answer
// Then: The owner keeps draining and the task completes
func TestReentrantExecutor_NestedBlockUntil(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r, err := NewDedicatedReentrantExecutor(ctx, testConfig())
	require.NoError(t, err)
	defer r.Close()

	// Act
	err = r.ExecuteBlocking(ctx, func(taskCtx context.Context) {
		answer := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			_, _ = r.Submit(func(ctx context.Context) { answer = 7 })
		}()

		depthBefore := r.BlockingDepth()
		err := r.BlockUntil(taskCtx, func() bool { return answer != 0 })
		assert.NoError(t, err)
		assert.Equal(t, 7, answer)
		assert.Equal(t, depthBefore, r.BlockingDepth())
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "reentrant", r.Stats().Type)
}

// TestReentrantExecutor_ForeignSubmitWhileRunning verifies depth never makes other goroutines inline
func TestReentrantExecutor_ForeignSubmitWhileRunning(t *testing.T) {
	r := newOwnedReentrant(t, testConfig())
	var foreignQueued bool

	fromProducer(func() {
		_, err := r.Submit(func(ctx context.Context) {
			fromProducer(func() {
				h, err := r.Submit(func(ctx context.Context) {})
				assert.NoError(t, err)
				foreignQueued = !h.IsDone()
			})
		})
		assert.NoError(t, err)
	})

	assert.Equal(t, 2, r.DrainAll())
	assert.True(t, foreignQueued)
}

// TestReentrantExecutor_OwnerInlineOutsideTask verifies top-level owner calls stay plain calls
func TestReentrantExecutor_OwnerInlineOutsideTask(t *testing.T) {
	r := newOwnedReentrant(t, testConfig())
	var depth int

	_, err := r.Submit(func(ctx context.Context) { depth = r.ReentrancyDepth() })
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	assert.Panics(t, func() {
		_, _ = r.Submit(func(ctx context.Context) { panic("top level") })
	})
	assert.Equal(t, 0, r.ReentrancyDepth())
}
