package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Swind/go-owner-executor/core"
	"github.com/Swind/go-owner-executor/internal/config"
	obsprom "github.com/Swind/go-owner-executor/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// world is the state owned by the loop goroutine. Only tasks running on
// the executor touch it.
type world struct {
	tick         int
	applied      int
	perLane      []int
	checksums    int
	lastChecksum int
}

type summary struct {
	Ticks int
	Stats core.ExecutorStats
}

// runSimulation must be called on the goroutine that will own the
// executor. It returns once the configured number of ticks has run or ctx
// ends.
func runSimulation(ctx context.Context, cfg *config.Config, logger core.Logger) (summary, error) {
	execCfg := cfg.CoreConfig()
	execCfg.Logger = logger
	execCfg.PanicHandler = core.NewLoggingPanicHandler(logger)
	execCfg.RejectedTaskHandler = &core.LoggingRejectedTaskHandler{Logger: logger}

	var reg *prom.Registry
	if cfg.Metrics.Addr != "" {
		reg = prom.NewRegistry()
		exporter, err := obsprom.NewMetricsExporter("", reg, obsprom.ExporterOptions{})
		if err != nil {
			return summary{}, err
		}
		execCfg.Metrics = exporter
	}

	exec, stats, err := newExecutor(cfg, execCfg)
	if err != nil {
		return summary{}, err
	}
	defer exec.Close()

	lanes := exec.Lanes()
	w := &world{perLane: make([]int, lanes)}

	g, gctx := errgroup.WithContext(ctx)
	producerCtx, stopProducers := context.WithCancel(gctx)
	defer stopProducers()

	if reg != nil {
		poller, err := obsprom.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
		if err != nil {
			return summary{}, err
		}
		poller.AddExecutor(execCfg.Name, stats)
		poller.Start(producerCtx)
		defer poller.Stop()

		if err := serveMetrics(producerCtx, g, cfg.Metrics.Addr, reg, logger); err != nil {
			return summary{}, err
		}
	}

	for id := range cfg.Producers.Count {
		g.Go(func() error {
			return produce(producerCtx, exec, w, id, lanes, cfg.Producers)
		})
	}

	logger.Info("tick loop started",
		core.F("executor", exec.Name()),
		core.F("owner", exec.Owner().String()),
		core.F("lanes", lanes),
		core.F("producers", cfg.Producers.Count),
	)

	ticks, loopErr := tickLoop(gctx, exec, w, cfg.Loop)

	stopProducers()
	exec.Close()
	if err := g.Wait(); ignoreShutdown(err) != nil {
		return summary{}, err
	}

	out := summary{Ticks: ticks, Stats: stats.Stats()}
	logger.Info("tick loop stopped",
		core.F("ticks", ticks),
		core.F("applied", w.applied),
		core.F("per_lane", w.perLane),
		core.F("checksums", w.checksums),
		core.F("executed", out.Stats.Executed),
		core.F("discarded", out.Stats.Discarded),
	)
	return out, ignoreShutdown(loopErr)
}

func newExecutor(cfg *config.Config, execCfg *core.ExecutorConfig) (*core.Executor, obsprom.ExecutorSnapshotProvider, error) {
	owner := core.CurrentOwnerID()
	if cfg.Executor.Reentrant {
		r, err := core.NewReentrantExecutor(owner, execCfg)
		if err != nil {
			return nil, nil, err
		}
		return r.Executor, r, nil
	}
	e, err := core.NewExecutor(owner, execCfg)
	if err != nil {
		return nil, nil, err
	}
	return e, e, nil
}

// tickLoop advances the world once per frame. Between frames the owner
// services producer submissions with BlockUntil instead of sleeping.
func tickLoop(ctx context.Context, exec *core.Executor, w *world, loop config.LoopConfig) (int, error) {
	for loop.Ticks == 0 || w.tick < loop.Ticks {
		frameEnd := time.Now().Add(loop.TickInterval)

		// Owner submissions run inline, in order, like a plain call.
		if _, err := exec.Submit(func(ctx context.Context) { w.tick++ }); err != nil {
			return w.tick, err
		}

		// Every tenth frame a helper goroutine computes a checksum and hands
		// it back through the queue; the frame does not end before it lands.
		if w.tick%10 == 0 {
			if err := awaitChecksum(ctx, exec, w); err != nil {
				return w.tick, err
			}
		}

		err := exec.BlockUntil(ctx, func() bool { return !time.Now().Before(frameEnd) })
		if err != nil {
			return w.tick, err
		}
	}
	return w.tick, nil
}

func awaitChecksum(ctx context.Context, exec *core.Executor, w *world) error {
	snapshot := w.applied
	var result int
	arrived := false

	go func() {
		sum := snapshot*31 + 7
		_, _ = exec.SubmitWithTraits(func(ctx context.Context) {
			result = sum
			arrived = true
		}, core.TraitsNamed("checksum"))
	}()

	if err := exec.BlockUntil(ctx, func() bool { return arrived }); err != nil {
		return fmt.Errorf("waiting for checksum: %w", err)
	}
	w.lastChecksum = result
	w.checksums++
	return nil
}

// produce submits paced work from a foreign goroutine. Each producer also
// reads the tick back through core.Call now and then, blocking on the
// owner like a client of the loop would.
func produce(ctx context.Context, exec *core.Executor, w *world, id, lanes int, cfg config.ProducersConfig) error {
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	lane := id % lanes

	for n := 0; ; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		if n%20 == 19 {
			_, err := core.Call(ctx, exec, func(ctx context.Context) (int, error) { return w.tick, nil })
			if err != nil {
				return ignoreShutdown(err)
			}
			continue
		}

		_, err := exec.SubmitWithTraits(func(ctx context.Context) {
			w.applied++
			w.perLane[lane]++
		}, core.TaskTraits{Lane: lane, Name: fmt.Sprintf("producer-%d", id)})
		if err != nil {
			return ignoreShutdown(err)
		}
	}
}

func ignoreShutdown(err error) error {
	if errors.Is(err, core.ErrExecutorClosed) || errors.Is(err, core.ErrTaskDiscarded) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prom.Registry, logger core.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("serving metrics", core.F("addr", ln.Addr().String()))
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}
