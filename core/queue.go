package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskQueue holds the pending tasks of an executor.
//
// All methods are safe for concurrent use. Producers only Push; the owner
// goroutine is the only caller of Pop, Peek and PopLane, which lets it pop
// exactly the item it peeked.
type TaskQueue interface {
	// Push appends item to the tail of lane.
	Push(item TaskItem, lane int) error
	// Pop removes the head of the lowest-numbered non-empty lane.
	Pop() (TaskItem, bool)
	// Peek returns the item Pop would return without removing it.
	Peek() (TaskItem, bool)
	// PopLane removes the head of one lane.
	PopLane(lane int) (TaskItem, bool)
	Len() int
	IsEmpty() bool
	Lanes() int
	LaneLen(lane int) int
	// Clear removes and returns every pending item.
	Clear() []TaskItem
}

// =============================================================================
// laneFIFO: mutex guarded slice FIFO, one per lane
// =============================================================================

type laneFIFO struct {
	mu    sync.Mutex
	tasks []TaskItem
}

func newLaneFIFO() *laneFIFO {
	return &laneFIFO{
		tasks: make([]TaskItem, 0, defaultQueueCap),
	}
}

func (q *laneFIFO) push(item TaskItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, item)
}

func (q *laneFIFO) pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return TaskItem{}, false
	}

	item := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = TaskItem{}
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *laneFIFO) peek() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return TaskItem{}, false
	}
	return q.tasks[0], true
}

func (q *laneFIFO) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *laneFIFO) drain() []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	drained := q.tasks
	q.tasks = make([]TaskItem, 0, defaultQueueCap)
	return drained
}

func (q *laneFIFO) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]TaskItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

// =============================================================================
// StrictPriorityQueue: N independent FIFO lanes, lane 0 drains first
// =============================================================================

// StrictPriorityQueue keeps one FIFO per lane and a global pending count.
//
// Priority is applied at drain time only: Push is O(1) and never reorders,
// Pop scans the lanes in ascending index order.
type StrictPriorityQueue struct {
	lanes   []*laneFIFO
	pending atomic.Int64
}

// NewStrictPriorityQueue creates a queue with the given number of lanes.
func NewStrictPriorityQueue(lanes int) (*StrictPriorityQueue, error) {
	if lanes < 1 {
		return nil, fmt.Errorf("strict priority queue needs at least one lane, got %d", lanes)
	}
	q := &StrictPriorityQueue{lanes: make([]*laneFIFO, lanes)}
	for i := range q.lanes {
		q.lanes[i] = newLaneFIFO()
	}
	return q, nil
}

func (q *StrictPriorityQueue) Push(item TaskItem, lane int) error {
	if lane < 0 || lane >= len(q.lanes) {
		return laneError(lane, len(q.lanes))
	}
	item.Lane = lane
	// Count first so that Len never under-reports a task that Pop can see.
	q.pending.Add(1)
	q.lanes[lane].push(item)
	return nil
}

func (q *StrictPriorityQueue) Pop() (TaskItem, bool) {
	for _, l := range q.lanes {
		if item, ok := l.pop(); ok {
			q.pending.Add(-1)
			return item, true
		}
	}
	return TaskItem{}, false
}

func (q *StrictPriorityQueue) Peek() (TaskItem, bool) {
	for _, l := range q.lanes {
		if item, ok := l.peek(); ok {
			return item, true
		}
	}
	return TaskItem{}, false
}

func (q *StrictPriorityQueue) PopLane(lane int) (TaskItem, bool) {
	if lane < 0 || lane >= len(q.lanes) {
		return TaskItem{}, false
	}
	item, ok := q.lanes[lane].pop()
	if ok {
		q.pending.Add(-1)
	}
	return item, ok
}

func (q *StrictPriorityQueue) Len() int {
	return int(q.pending.Load())
}

func (q *StrictPriorityQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *StrictPriorityQueue) Lanes() int {
	return len(q.lanes)
}

func (q *StrictPriorityQueue) LaneLen(lane int) int {
	if lane < 0 || lane >= len(q.lanes) {
		return 0
	}
	return q.lanes[lane].len()
}

func (q *StrictPriorityQueue) Clear() []TaskItem {
	var dropped []TaskItem
	for _, l := range q.lanes {
		items := l.drain()
		if len(items) == 0 {
			continue
		}
		q.pending.Add(-int64(len(items)))
		dropped = append(dropped, items...)
	}
	return dropped
}

// =============================================================================
// FIFOTaskQueue: the single lane specialization
// =============================================================================

// FIFOTaskQueue is a single concurrent FIFO; insertion order is execution
// order. Only lane 0 is accepted.
type FIFOTaskQueue struct {
	fifo    *laneFIFO
	pending atomic.Int64
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{fifo: newLaneFIFO()}
}

func (q *FIFOTaskQueue) Push(item TaskItem, lane int) error {
	if lane != LaneDefault {
		return laneError(lane, 1)
	}
	item.Lane = LaneDefault
	q.pending.Add(1)
	q.fifo.push(item)
	return nil
}

func (q *FIFOTaskQueue) Pop() (TaskItem, bool) {
	item, ok := q.fifo.pop()
	if ok {
		q.pending.Add(-1)
	}
	return item, ok
}

func (q *FIFOTaskQueue) Peek() (TaskItem, bool) {
	return q.fifo.peek()
}

func (q *FIFOTaskQueue) PopLane(lane int) (TaskItem, bool) {
	if lane != LaneDefault {
		return TaskItem{}, false
	}
	return q.Pop()
}

func (q *FIFOTaskQueue) Len() int {
	return int(q.pending.Load())
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFOTaskQueue) Lanes() int {
	return 1
}

func (q *FIFOTaskQueue) LaneLen(lane int) int {
	if lane != LaneDefault {
		return 0
	}
	return q.fifo.len()
}

func (q *FIFOTaskQueue) Clear() []TaskItem {
	items := q.fifo.drain()
	if len(items) > 0 {
		q.pending.Add(-int64(len(items)))
	}
	return items
}
