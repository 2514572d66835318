// Package ownerexecutor confines the state of a subsystem to one owner
// goroutine while letting any goroutine hand it work.
//
// An Executor is bound to the goroutine that owns the state. Work submitted
// by the owner runs inline like a plain call. Work submitted by any other
// goroutine is queued and run by the owner the next time it drains, so task
// bodies never run concurrently and the state they touch needs no locks.
//
// # Quick Start
//
// Bind an executor to the current goroutine and drain it from your loop:
//
//	exec, err := ownerexecutor.New(ownerexecutor.CurrentOwner(), nil)
//	if err != nil {
//		return err
//	}
//	defer exec.Close()
//
//	for running {
//		exec.DrainAll()
//		step()
//	}
//
// Or let the executor own a goroutine of its own:
//
//	exec, err := ownerexecutor.NewDedicated(ctx, nil)
//
// # Key Concepts
//
// Lanes: with ExecutorConfig.Lanes > 0 the queue is a strict priority
// queue. Lane 0 always drains first and each lane is FIFO. Tasks name their
// lane through TaskTraits.
//
// Blocking: ExecuteBlocking and Call submit from a foreign goroutine and
// wait for the result. On the owner, BlockUntil keeps draining the queue
// while it waits for a condition, so waiting never starves the producers
// the condition depends on.
//
// Reentrancy: a ReentrantExecutor lets a running task wait on its own
// executor. Owner submissions made from inside a task run immediately as
// nested frames, and nested failures come back through the handle.
//
// # Failures
//
// A panicking task is recovered at the drain boundary, reported to the
// PanicHandler and Metrics, and returned to any ExecuteBlocking caller as a
// *TaskPanicError. The owner loop keeps running.
//
// See the observability/prometheus package for a Prometheus exporter and
// cmd/ownerloop for a complete program.
package ownerexecutor
