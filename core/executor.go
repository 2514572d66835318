package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// ErrNilTask is returned when a nil Task is submitted.
var ErrNilTask = errors.New("nil task")

// executorHooks are the points where a variant changes the base behaviour.
type executorHooks struct {
	// inlineEligible reports whether a submission made by origin runs
	// without going through the queue.
	inlineEligible func(origin OwnerID) bool
	// runInline executes a submission that inlineEligible accepted.
	runInline func(item TaskItem) error
	// enterTask and exitTask bracket every task execution.
	enterTask func()
	exitTask  func()
	// reentrancy reports the nesting depth for Stats.
	reentrancy func() int
}

// Executor runs every task on one owner goroutine.
//
// Any goroutine may submit. A submission made by the owner runs inline; any
// other submission is queued and the owner is woken. The owner drains the
// queue with PollOne, DrainAll, BlockUntil or RunLoop, so task bodies never
// run concurrently with each other and the state they touch needs no locks.
type Executor struct {
	owner  OwnerID
	kind   string
	queue  TaskQueue
	wake   chan struct{}
	cfg    ExecutorConfig
	runCtx context.Context

	// written only by the owner; atomic so Stats can read it anywhere
	blockingDepth atomic.Int32
	closed        atomic.Bool

	executed  atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
	discarded atomic.Int64
	history   *executionHistory

	hooks executorHooks
}

// NewExecutor creates an executor bound to owner. config may be nil.
func NewExecutor(owner OwnerID, config *ExecutorConfig) (*Executor, error) {
	return newExecutor(owner, "owner", config)
}

func newExecutor(owner OwnerID, kind string, config *ExecutorConfig) (*Executor, error) {
	if owner == 0 {
		return nil, ErrNoOwner
	}
	cfg := config.withDefaults()
	if cfg.Name == "" {
		cfg.Name = kind
	}

	var queue TaskQueue
	switch {
	case cfg.Lanes < 0:
		return nil, fmt.Errorf("executor %s: negative lane count %d", cfg.Name, cfg.Lanes)
	case cfg.Lanes == 0:
		queue = NewFIFOTaskQueue()
	default:
		q, err := NewStrictPriorityQueue(cfg.Lanes)
		if err != nil {
			return nil, fmt.Errorf("executor %s: %w", cfg.Name, err)
		}
		queue = q
	}

	e := &Executor{
		owner:   owner,
		kind:    kind,
		queue:   queue,
		wake:    make(chan struct{}, 1),
		cfg:     cfg,
		history: newExecutionHistory(cfg.HistoryCapacity),
	}
	e.runCtx = context.WithValue(context.Background(), executorKey, e)
	e.hooks = executorHooks{
		inlineEligible: func(origin OwnerID) bool { return origin == e.owner },
		runInline:      e.runBare,
	}
	return e, nil
}

// Name returns the executor name used in logs and metrics.
func (e *Executor) Name() string { return e.cfg.Name }

// Owner returns the goroutine the executor is bound to.
func (e *Executor) Owner() OwnerID { return e.owner }

// Lanes returns the number of lanes; 1 for the single FIFO variant.
func (e *Executor) Lanes() int { return e.queue.Lanes() }

// IsOwnerThread reports whether the caller is the owner goroutine.
func (e *Executor) IsOwnerThread() bool {
	return CurrentOwnerID() == e.owner
}

// IsClosed reports whether Close has been called.
func (e *Executor) IsClosed() bool { return e.closed.Load() }

// PendingCount returns the number of queued tasks. Cheap and callable from
// any goroutine.
func (e *Executor) PendingCount() int { return e.queue.Len() }

// BlockingDepth returns the number of BlockUntil calls currently active.
func (e *Executor) BlockingDepth() int { return int(e.blockingDepth.Load()) }

// =============================================================================
// Submission
// =============================================================================

// Submit runs task on the owner goroutine using the default lane.
func (e *Executor) Submit(task Task) (*Handle, error) {
	return e.SubmitWithTraits(task, DefaultTaskTraits())
}

// SubmitWithTraits runs task inline when called by the owner and returns an
// already resolved handle. From any other goroutine the task is queued on
// traits.Lane and the returned handle resolves once it has run.
func (e *Executor) SubmitWithTraits(task Task, traits TaskTraits) (*Handle, error) {
	return e.submit(CurrentOwnerID(), task, traits)
}

func (e *Executor) submit(origin OwnerID, task Task, traits TaskTraits) (*Handle, error) {
	if err := e.admit(task, traits); err != nil {
		return nil, err
	}
	item := e.newItem(origin, task, traits)

	if e.hooks.inlineEligible(origin) {
		err := e.hooks.runInline(item)
		return resolvedHandle(item.ID, err), nil
	}

	item.handle = newHandle(item.ID)
	if err := e.queue.Push(item, traits.Lane); err != nil {
		e.reject("invalid lane", err)
		return nil, err
	}
	// Close may have drained the queue between admit and Push.
	if e.closed.Load() {
		e.Clear()
		return item.handle, nil
	}
	e.signal()
	return item.handle, nil
}

func (e *Executor) admit(task Task, traits TaskTraits) error {
	if e.closed.Load() {
		e.reject("closed", ErrExecutorClosed)
		return ErrExecutorClosed
	}
	if task == nil {
		e.reject("nil task", ErrNilTask)
		return ErrNilTask
	}
	if traits.Lane < 0 || traits.Lane >= e.queue.Lanes() {
		err := laneError(traits.Lane, e.queue.Lanes())
		e.reject("invalid lane", err)
		return err
	}
	return nil
}

func (e *Executor) newItem(origin OwnerID, task Task, traits TaskTraits) TaskItem {
	return TaskItem{
		ID:     GenerateTaskID(),
		Name:   resolveTaskName(task, traits.Name),
		Lane:   traits.Lane,
		Origin: origin,
		Queued: time.Now(),
		Task:   task,
	}
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
		// a wake-up is already pending
	}
}

func (e *Executor) reject(reason string, err error) {
	e.rejected.Add(1)
	e.cfg.Metrics.RecordTaskRejected(e.cfg.Name, reason)
	e.cfg.RejectedTaskHandler.HandleRejectedTask(e.cfg.Name, reason, err)
}

// ExecuteBlocking runs task on the owner goroutine and waits for it.
func (e *Executor) ExecuteBlocking(ctx context.Context, task Task) error {
	return e.ExecuteBlockingWithTraits(ctx, task, DefaultTaskTraits())
}

// ExecuteBlockingWithTraits runs task inline when called by the owner.
// Otherwise it queues the task and blocks the caller until the task has run.
// A panic in the task is returned to this caller as a *TaskPanicError.
//
// ctx bounds the wait only: once queued the task still runs even if the
// caller gave up.
func (e *Executor) ExecuteBlockingWithTraits(ctx context.Context, task Task, traits TaskTraits) error {
	origin := CurrentOwnerID()
	if e.hooks.inlineEligible(origin) {
		if err := e.admit(task, traits); err != nil {
			return err
		}
		return e.execute(e.newItem(origin, task, traits), true)
	}

	h, err := e.submit(origin, task, traits)
	if err != nil {
		return err
	}
	return h.Wait(ctx)
}

// Call runs fn on the owner goroutine of e and returns its result. It
// follows the ExecuteBlocking rules.
func Call[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		result  T
		callErr error
	)
	err := e.ExecuteBlocking(ctx, func(taskCtx context.Context) {
		result, callErr = fn(taskCtx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, callErr
}

// =============================================================================
// Draining (owner goroutine only)
// =============================================================================

// PollOne runs at most one queued task and reports whether it did.
//
// Outside a blocking wait the RunGate may veto the head task, in which case
// nothing happens. Called from a goroutine other than the owner it logs and
// returns false.
func (e *Executor) PollOne() bool {
	if !e.IsOwnerThread() {
		e.cfg.Logger.Warn("PollOne called off the owner goroutine", F("executor", e.cfg.Name), F("error", ErrNotOwner))
		return false
	}
	return e.pollOne()
}

func (e *Executor) pollOne() bool {
	if e.closed.Load() {
		return false
	}
	head, ok := e.queue.Peek()
	if !ok {
		return false
	}
	if e.blockingDepth.Load() == 0 && e.cfg.RunGate != nil && !e.cfg.RunGate(head) {
		return false
	}
	// The owner is the only consumer, so the head of this lane is still head.
	item, ok := e.queue.PopLane(head.Lane)
	if !ok {
		return false
	}
	err := e.execute(item, false)
	if item.handle != nil {
		item.handle.resolve(err)
	}
	e.cfg.Metrics.RecordQueueDepth(e.cfg.Name, e.queue.Len())
	return true
}

// DrainAll runs queued tasks until PollOne reports nothing to do and
// returns how many ran. Returns 0 off the owner goroutine.
func (e *Executor) DrainAll() int {
	if !e.IsOwnerThread() {
		e.cfg.Logger.Warn("DrainAll called off the owner goroutine", F("executor", e.cfg.Name), F("error", ErrNotOwner))
		return 0
	}
	return e.drainAll()
}

func (e *Executor) drainAll() int {
	n := 0
	for e.pollOne() {
		n++
	}
	return n
}

// BlockUntil keeps draining the queue on the owner goroutine until done
// returns true. While it runs the RunGate is ignored. When there is nothing
// to run it yields and then parks for at most the configured idle park, or
// until a new submission arrives.
//
// It returns ctx.Err() if ctx ends first, and ErrExecutorClosed if the
// executor is closed while done is still false.
func (e *Executor) BlockUntil(ctx context.Context, done func() bool) error {
	if !e.IsOwnerThread() {
		return ErrNotOwner
	}

	e.blockingDepth.Add(1)
	defer e.blockingDepth.Add(-1)

	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.pollOne() {
			continue
		}
		if e.closed.Load() {
			return ErrExecutorClosed
		}
		e.waitForTasks(ctx)
	}
	return nil
}

func (e *Executor) waitForTasks(ctx context.Context) {
	runtime.Gosched()

	timer := time.NewTimer(e.cfg.IdlePark)
	defer timer.Stop()

	select {
	case <-e.wake:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// RunLoop turns the calling owner goroutine into a dedicated loop: drain,
// then sleep until the next submission. It returns when ctx ends or the
// executor is closed.
func (e *Executor) RunLoop(ctx context.Context) error {
	if !e.IsOwnerThread() {
		return ErrNotOwner
	}

	e.cfg.Logger.Debug("run loop started", F("executor", e.cfg.Name), F("owner", e.owner.String()))
	defer e.cfg.Logger.Debug("run loop stopped", F("executor", e.cfg.Name))

	for {
		e.drainAll()

		if err := ctx.Err(); err != nil {
			return err
		}
		if e.closed.Load() {
			return ErrExecutorClosed
		}

		if e.queue.IsEmpty() {
			select {
			case <-e.wake:
			case <-ctx.Done():
			}
			continue
		}

		// The gate is holding tasks back; look again after an idle park.
		e.waitForTasks(ctx)
	}
}

// =============================================================================
// Task execution
// =============================================================================

// execute runs one task with panic recovery. A panic is reported to the
// PanicHandler and returned as a *TaskPanicError; it never escapes.
func (e *Executor) execute(item TaskItem, inline bool) (err error) {
	if e.hooks.enterTask != nil {
		e.hooks.enterTask()
		defer e.hooks.exitTask()
	}

	startedAt := time.Now()
	defer func() {
		panicked := false
		if rec := recover(); rec != nil {
			panicked = true
			stack := debug.Stack()
			err = &TaskPanicError{TaskID: item.ID, Name: item.Name, Value: rec, Stack: stack}
			e.panicked.Add(1)
			e.cfg.Metrics.RecordTaskPanic(e.cfg.Name, rec)
			e.cfg.PanicHandler.HandlePanic(e.runCtx, e.cfg.Name, item, rec, stack)
		}
		e.record(item, inline, startedAt, panicked)
	}()

	item.Task(e.runCtx)
	return nil
}

// runBare runs an inline task without recovery: a panic unwinds into the
// submitting caller exactly like a plain function call would. It is still
// recorded in the history.
func (e *Executor) runBare(item TaskItem) error {
	if e.hooks.enterTask != nil {
		e.hooks.enterTask()
		defer e.hooks.exitTask()
	}

	startedAt := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			e.panicked.Add(1)
			e.record(item, true, startedAt, true)
			panic(rec)
		}
		e.record(item, true, startedAt, false)
	}()

	item.Task(e.runCtx)
	return nil
}

func (e *Executor) record(item TaskItem, inline bool, startedAt time.Time, panicked bool) {
	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)
	e.executed.Add(1)
	e.cfg.Metrics.RecordTaskDuration(e.cfg.Name, item.Lane, duration)
	e.history.Add(TaskExecutionRecord{
		TaskID:     item.ID,
		Name:       item.Name,
		Executor:   e.cfg.Name,
		Lane:       item.Lane,
		Inline:     inline,
		QueuedAt:   item.Queued,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Panicked:   panicked,
	})
}

// =============================================================================
// Shutdown and introspection
// =============================================================================

// Clear drops every pending task without running it and returns how many
// were dropped. Their handles resolve with ErrTaskDiscarded. Meant for
// teardown and reset paths.
func (e *Executor) Clear() int {
	items := e.queue.Clear()
	for _, item := range items {
		if item.handle != nil {
			item.handle.resolve(ErrTaskDiscarded)
		}
	}
	if n := len(items); n > 0 {
		e.discarded.Add(int64(n))
		e.cfg.Logger.Info("pending tasks discarded", F("executor", e.cfg.Name), F("count", n))
	}
	return len(items)
}

// Close rejects further submissions and discards pending tasks. Calling it
// more than once is safe.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.Clear()
	// Release a RunLoop parked on the wake channel.
	e.signal()
	e.cfg.Logger.Debug("executor closed", F("executor", e.cfg.Name))
}

// Recent returns up to limit execution records, newest first.
func (e *Executor) Recent(limit int) []TaskExecutionRecord {
	return e.history.Recent(limit)
}

// Stats returns a snapshot of the executor state.
func (e *Executor) Stats() ExecutorStats {
	lanes := make([]int, e.queue.Lanes())
	for i := range lanes {
		lanes[i] = e.queue.LaneLen(i)
	}

	stats := ExecutorStats{
		Name:          e.cfg.Name,
		Type:          e.kind,
		Owner:         e.owner,
		Pending:       e.queue.Len(),
		LanePending:   lanes,
		BlockingDepth: e.BlockingDepth(),
		Executed:      e.executed.Load(),
		Panicked:      e.panicked.Load(),
		Rejected:      e.rejected.Load(),
		Discarded:     e.discarded.Load(),
		Closed:        e.closed.Load(),
	}
	if e.hooks.reentrancy != nil {
		stats.ReentrancyDepth = e.hooks.reentrancy()
	}
	if last, ok := e.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// =============================================================================
// Dedicated owner goroutine
// =============================================================================

// NewDedicatedExecutor starts a goroutine, binds a new executor to it and
// runs RunLoop there until ctx ends or the executor is closed. The
// executor is closed when the loop exits.
func NewDedicatedExecutor(ctx context.Context, config *ExecutorConfig) (*Executor, error) {
	return startDedicated(ctx, func(owner OwnerID) (*Executor, error) {
		return NewExecutor(owner, config)
	})
}

func startDedicated(ctx context.Context, build func(owner OwnerID) (*Executor, error)) (*Executor, error) {
	type result struct {
		e   *Executor
		err error
	}
	ready := make(chan result, 1)

	go func() {
		e, err := build(CurrentOwnerID())
		if err != nil {
			ready <- result{err: err}
			return
		}
		e.runCtx = context.WithValue(ctx, executorKey, e)
		ready <- result{e: e}

		defer e.Close()
		if err := e.RunLoop(ctx); err != nil && !errors.Is(err, ErrExecutorClosed) && !errors.Is(err, context.Canceled) {
			e.cfg.Logger.Warn("run loop exited", F("executor", e.cfg.Name), F("error", err))
		}
	}()

	r := <-ready
	return r.e, r.err
}
