package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLaneOutOfRange is returned when a task targets a lane outside [0, lanes).
	ErrLaneOutOfRange = errors.New("lane out of range")

	// ErrNoOwner is returned when an executor is built without an owner goroutine.
	ErrNoOwner = errors.New("executor has no owner goroutine")

	// ErrNotOwner is returned when an owner-only operation is called from
	// another goroutine.
	ErrNotOwner = errors.New("not called from the owner goroutine")

	// ErrExecutorClosed is returned by submissions to a closed executor.
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrTaskDiscarded resolves handles of tasks dropped by Clear or Close.
	ErrTaskDiscarded = errors.New("task discarded before it ran")

	// ErrTaskPanicked is the target every *TaskPanicError unwraps to.
	ErrTaskPanicked = errors.New("task panicked")
)

// TaskPanicError reports a task that panicked while running on the owner
// goroutine.
type TaskPanicError struct {
	TaskID TaskID
	Name   string
	Value  any
	Stack  []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %s (%s) panicked: %v", e.Name, e.TaskID, e.Value)
}

// Unwrap exposes ErrTaskPanicked and, when the panic value is an error, that
// error as well.
func (e *TaskPanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrTaskPanicked, err}
	}
	return []error{ErrTaskPanicked}
}

func laneError(lane, lanes int) error {
	return fmt.Errorf("%w: lane %d, lanes %d", ErrLaneOutOfRange, lane, lanes)
}
