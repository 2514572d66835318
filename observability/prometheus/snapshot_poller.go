package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-owner-executor/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExecutorSnapshotProvider provides current executor stats snapshots.
// *core.Executor and *core.ReentrantExecutor both satisfy it.
type ExecutorSnapshotProvider interface {
	Stats() core.ExecutorStats
}

// SnapshotPoller periodically exports executor Stats() snapshots into
// Prometheus gauges.
//
// The set of executors is owned by the poller: callers add executors when
// they are built and remove them when they are retired. Removing an
// executor also deletes its series.
type SnapshotPoller struct {
	interval time.Duration

	mu        sync.RWMutex
	executors map[string]ExecutorSnapshotProvider
	lanes     map[string]int

	pending         *prom.GaugeVec
	lanePending     *prom.GaugeVec
	blockingDepth   *prom.GaugeVec
	reentrancyDepth *prom.GaugeVec
	executed        *prom.GaugeVec
	closed          *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_pending",
		Help:      "Number of queued tasks per executor.",
	}, []string{"executor", "type"})
	lanePending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_lane_pending",
		Help:      "Number of queued tasks per executor lane.",
	}, []string{"executor", "lane"})
	blockingDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_blocking_depth",
		Help:      "Nested BlockUntil waits active on the owner goroutine.",
	}, []string{"executor", "type"})
	reentrancyDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_reentrancy_depth",
		Help:      "Task frames active on the owner goroutine.",
	}, []string{"executor", "type"})
	executed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_executed_total",
		Help:      "Executor executed task count snapshot.",
	}, []string{"executor", "type"})
	closed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "executor_closed",
		Help:      "Executor closed state (1=closed, 0=open).",
	}, []string{"executor", "type"})

	var err error
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if lanePending, err = registerCollector(reg, lanePending); err != nil {
		return nil, err
	}
	if blockingDepth, err = registerCollector(reg, blockingDepth); err != nil {
		return nil, err
	}
	if reentrancyDepth, err = registerCollector(reg, reentrancyDepth); err != nil {
		return nil, err
	}
	if executed, err = registerCollector(reg, executed); err != nil {
		return nil, err
	}
	if closed, err = registerCollector(reg, closed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		executors:       make(map[string]ExecutorSnapshotProvider),
		lanes:           make(map[string]int),
		pending:         pending,
		lanePending:     lanePending,
		blockingDepth:   blockingDepth,
		reentrancyDepth: reentrancyDepth,
		executed:        executed,
		closed:          closed,
	}, nil
}

// AddExecutor adds or replaces an executor snapshot provider by name.
func (p *SnapshotPoller) AddExecutor(name string, provider ExecutorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "executor")
	p.mu.Lock()
	p.executors[name] = provider
	p.mu.Unlock()
}

// RemoveExecutor stops sampling name and deletes its series.
func (p *SnapshotPoller) RemoveExecutor(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "executor")
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.executors[name]; !ok {
		return
	}
	delete(p.executors, name)
	delete(p.lanes, name)

	match := prom.Labels{"executor": name}
	p.pending.DeletePartialMatch(match)
	p.lanePending.DeletePartialMatch(match)
	p.blockingDepth.DeletePartialMatch(match)
	p.reentrancyDepth.DeletePartialMatch(match)
	p.executed.DeletePartialMatch(match)
	p.closed.DeletePartialMatch(match)
}

// Executors returns the number of registered executors.
func (p *SnapshotPoller) Executors() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.executors)
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, provider := range p.executors {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.pending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.blockingDepth.WithLabelValues(name, typeLabel).Set(float64(stats.BlockingDepth))
		p.reentrancyDepth.WithLabelValues(name, typeLabel).Set(float64(stats.ReentrancyDepth))
		p.executed.WithLabelValues(name, typeLabel).Set(float64(stats.Executed))
		if stats.Closed {
			p.closed.WithLabelValues(name, typeLabel).Set(1)
		} else {
			p.closed.WithLabelValues(name, typeLabel).Set(0)
		}

		for lane, n := range stats.LanePending {
			p.lanePending.WithLabelValues(name, laneLabel(lane)).Set(float64(n))
		}
		// drop lanes left over from a provider replaced with fewer lanes
		for lane := len(stats.LanePending); lane < p.lanes[name]; lane++ {
			p.lanePending.DeleteLabelValues(name, laneLabel(lane))
		}
		p.lanes[name] = len(stats.LanePending)
	}
}
