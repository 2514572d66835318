package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	Executor   string
	Lane       int
	Inline     bool
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// ExecutorStats represents runtime observability state for an executor.
// Every field is safe to read from any goroutine.
type ExecutorStats struct {
	Name            string
	Type            string
	Owner           OwnerID
	Pending         int
	LanePending     []int
	BlockingDepth   int
	ReentrancyDepth int
	Executed        int64
	Panicked        int64
	Rejected        int64
	Discarded       int64
	Closed          bool
	LastTaskName    string
	LastTaskAt      time.Time
}
