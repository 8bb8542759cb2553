package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
)

// Global runs every non-async call on a single worker, so ordering is total.
type Global struct {
	*core
	main *worker
}

// NewGlobal starts the single worker.
func NewGlobal(cfg Config, log zerolog.Logger) *Global {
	cfg = cfg.withDefaults()
	cfg.Mode = ModeGlobal
	c := newCore(cfg, log)
	g := &Global{
		core: c,
		main: newWorker(scopeGlobal, cfg.QueueSize, cfg.EnqueueTimeout, c.done, c.log),
	}
	c.start(g.main)
	return g
}

func (g *Global) Mode() Mode { return ModeGlobal }

func (g *Global) pick() *worker { return g.main }

func (g *Global) RunNow(fn func()) *Task {
	t := g.newTask(scopeGlobal)
	g.dispatch(g.main, t, fn)
	return t
}

func (g *Global) RunDelayed(delay time.Duration, fn func()) *Task {
	t := g.newTask(scopeGlobal)
	g.later(g.pick, t, delay, fn)
	return t
}

func (g *Global) RunRepeating(initialDelay, period time.Duration, fn func()) (*Task, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	t := g.newTask(scopeGlobal)
	g.every(g.pick, t, initialDelay, period, fn)
	return t, nil
}

// RunAtLocation enqueues on the single worker; there is only one partition.
func (g *Global) RunAtLocation(_ model.Location, fn func()) *Task {
	return g.RunNow(fn)
}

// RunAtActor enqueues on the single worker.
func (g *Global) RunAtActor(_ uuid.UUID, fn func()) *Task {
	return g.RunNow(fn)
}

func (g *Global) RunAsync(fn func()) *Task { return g.runAsync(fn) }

// Barrier waits until everything queued before it has run.
func (g *Global) Barrier(ctx context.Context) error { return g.main.barrier(ctx) }

// HealthPing implements health.HealthPinger.
func (g *Global) HealthPing(ctx context.Context) error { return healthPing(ctx, g.core, g.main) }

// Stop drains the worker and waits for async work. Idempotent.
func (g *Global) Stop() { g.stop() }

// Close lets Global satisfy io.Closer.
func (g *Global) Close() error {
	g.Stop()
	return nil
}
