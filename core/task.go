package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskID uniquely identifies a submitted task.
type TaskID uuid.UUID

// GenerateTaskID returns a fresh random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero reports whether the ID was never assigned.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// TaskTraits: Define task attributes (lane, name)
// =============================================================================

// Lane 0 is the highest priority lane. Executors built without lanes only
// accept LaneDefault.
const LaneDefault = 0

type TaskTraits struct {
	// Lane selects the priority lane. Must lie in [0, lanes).
	Lane int

	// Name is used for logging and execution history. When empty the
	// function name of the task is used.
	Name string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Lane: LaneDefault}
}

// TraitsLane returns traits targeting the given lane.
func TraitsLane(lane int) TaskTraits {
	return TaskTraits{Lane: lane}
}

// TraitsNamed returns default-lane traits carrying a task name.
func TraitsNamed(name string) TaskTraits {
	return TaskTraits{Lane: LaneDefault, Name: name}
}

// TaskItem is a queued task together with its bookkeeping.
type TaskItem struct {
	ID     TaskID
	Name   string
	Lane   int
	Origin OwnerID // goroutine that submitted the task
	Queued time.Time
	Task   Task

	handle *Handle
}

// =============================================================================
// Context Helper
// =============================================================================
type executorKeyType struct{}

var executorKey executorKeyType

// GetCurrentExecutor returns the executor running the task that owns ctx,
// or nil when ctx was not handed out by an executor.
func GetCurrentExecutor(ctx context.Context) *Executor {
	if v := ctx.Value(executorKey); v != nil {
		return v.(*Executor)
	}
	return nil
}
