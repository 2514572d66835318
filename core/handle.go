package core

import (
	"context"
	"sync"
)

// Handle tracks the completion of one submitted task.
//
// A handle resolves exactly once: with nil when the task returned normally,
// with a *TaskPanicError when it panicked, or with ErrTaskDiscarded when the
// queue was cleared before the task ran.
type Handle struct {
	id   TaskID
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle(id TaskID) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func resolvedHandle(id TaskID, err error) *Handle {
	h := newHandle(id)
	h.resolve(err)
	return h
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// ID returns the ID of the task behind this handle.
func (h *Handle) ID() TaskID {
	return h.id
}

// Done is closed once the task has run or was discarded.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsDone reports whether the handle has resolved.
func (h *Handle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the task outcome. It is nil until the handle resolves.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the handle resolves or ctx ends.
//
// Wait parks the calling goroutine. The owner goroutine must not wait on a
// handle of its own executor this way; use Executor.BlockUntil instead so the
// queue keeps draining.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
