package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-owner-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type executorStub struct {
	mu    sync.Mutex
	stats core.ExecutorStats
}

func (s *executorStub) Stats() core.ExecutorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *executorStub) set(stats core.ExecutorStats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

func TestSnapshotPoller_CollectsExecutorStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddExecutor("sim", &executorStub{stats: core.ExecutorStats{
		Type:            "reentrant",
		Pending:         5,
		LanePending:     []int{1, 4},
		BlockingDepth:   1,
		ReentrancyDepth: 2,
		Executed:        9,
		Closed:          true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.pending.WithLabelValues("sim", "reentrant"))
		lane1 := testutil.ToFloat64(poller.lanePending.WithLabelValues("sim", "1"))
		return pending == 5 && lane1 == 4
	})

	if got := testutil.ToFloat64(poller.lanePending.WithLabelValues("sim", "0")); got != 1 {
		t.Fatalf("lane 0 pending = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.blockingDepth.WithLabelValues("sim", "reentrant")); got != 1 {
		t.Fatalf("blocking depth = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.reentrancyDepth.WithLabelValues("sim", "reentrant")); got != 2 {
		t.Fatalf("reentrancy depth = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.executed.WithLabelValues("sim", "reentrant")); got != 9 {
		t.Fatalf("executed = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.closed.WithLabelValues("sim", "reentrant")); got != 1 {
		t.Fatalf("closed gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_RemoveExecutorDeletesSeries(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddExecutor("a", &executorStub{stats: core.ExecutorStats{Type: "owner", Pending: 1, LanePending: []int{1}}})
	poller.AddExecutor("b", &executorStub{stats: core.ExecutorStats{Type: "owner", Pending: 2, LanePending: []int{2}}})
	poller.collectOnce()

	if got := testutil.CollectAndCount(poller.pending); got != 2 {
		t.Fatalf("pending series = %d, want 2", got)
	}

	poller.RemoveExecutor("a")
	poller.RemoveExecutor("missing")

	if got := poller.Executors(); got != 1 {
		t.Fatalf("executors = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(poller.pending); got != 1 {
		t.Fatalf("pending series after remove = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(poller.lanePending); got != 1 {
		t.Fatalf("lane series after remove = %d, want 1", got)
	}
}

func TestSnapshotPoller_ShrinkingLanes(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	stub := &executorStub{stats: core.ExecutorStats{Type: "owner", LanePending: []int{0, 0, 3}}}
	poller.AddExecutor("sim", stub)
	poller.collectOnce()
	if got := testutil.CollectAndCount(poller.lanePending); got != 3 {
		t.Fatalf("lane series = %d, want 3", got)
	}

	stub.set(core.ExecutorStats{Type: "owner", LanePending: []int{2}})
	poller.collectOnce()
	if got := testutil.CollectAndCount(poller.lanePending); got != 1 {
		t.Fatalf("lane series after shrink = %d, want 1", got)
	}
}

// A live executor is sampled while its owner is parked inside BlockUntil.
func TestSnapshotPoller_SamplesLiveExecutor(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	cfg := &core.ExecutorConfig{Name: "live", Lanes: 2, Logger: core.NewNoOpLogger()}
	e, err := core.NewExecutor(core.CurrentOwnerID(), cfg)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	defer e.Close()
	poller.AddExecutor("live", e)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	sawBlocking := false
	err = e.BlockUntil(ctx, func() bool {
		if testutil.ToFloat64(poller.blockingDepth.WithLabelValues("live", "owner")) == 1 {
			sawBlocking = true
		}
		return sawBlocking
	})
	if err != nil {
		t.Fatalf("BlockUntil failed: %v", err)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
