// Package scheduler runs game logic either on one global worker or on a set
// of region-partitioned workers, behind one interface.
//
// Callers pick a scope on every call: global (RunNow, RunDelayed,
// RunRepeating), partition (RunAtLocation, RunAtActor) or I/O (RunAsync).
// Two calls are never guaranteed to run on the same goroutine or close in
// time; the only ordering promise is FIFO within one worker.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mycelian/relic-service/internal/model"
)

// Scheduler is implemented by *Global and *Partitioned.
type Scheduler interface {
	Mode() Mode

	RunNow(fn func()) *Task
	RunDelayed(delay time.Duration, fn func()) *Task
	// RunRepeating returns ErrInvalidPeriod when period <= 0.
	RunRepeating(initialDelay, period time.Duration, fn func()) (*Task, error)

	RunAtLocation(loc model.Location, fn func()) *Task
	RunAtActor(actor uuid.UUID, fn func()) *Task

	RunAsync(fn func()) *Task

	// Stop drains queued work and rejects new work. Idempotent.
	Stop()
}

// ActorLocator tells the partitioned scheduler where an actor currently is.
type ActorLocator interface {
	LocationOf(actor uuid.UUID) (model.Location, bool)
}

// New builds the variant selected by cfg.Mode.
func New(cfg Config, locator ActorLocator, log zerolog.Logger) (Scheduler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModePartitioned:
		return NewPartitioned(cfg, locator, log), nil
	default:
		return NewGlobal(cfg, log), nil
	}
}

const (
	scopeGlobal = "global"
	scopeAsync  = "async"
)

// core holds what both variants share: task ids, timers, the async pool and
// the shutdown protocol.
type core struct {
	cfg  Config
	log  zerolog.Logger
	done chan struct{}

	// mu orders Stop against RunAsync's WaitGroup.Add.
	mu     sync.RWMutex
	closed atomic.Bool

	ids     atomic.Uint64
	workers sync.WaitGroup
	async   sync.WaitGroup
	asyncSe *semaphore.Weighted
}

func newCore(cfg Config, log zerolog.Logger) *core {
	return &core{
		cfg:     cfg,
		log:     log.With().Str("component", "scheduler").Str("mode", string(cfg.Mode)).Logger(),
		done:    make(chan struct{}),
		asyncSe: semaphore.NewWeighted(int64(cfg.AsyncWorkers)),
	}
}

func (c *core) start(w *worker) {
	c.workers.Add(1)
	go w.run(&c.workers)
}

func (c *core) newTask(scope string) *Task {
	return newTask(c.ids.Add(1), scope)
}

// dispatch enqueues fn on w. A task that cannot be queued is cancelled so the
// caller's handle reflects that it will never run.
func (c *core) dispatch(w *worker, t *Task, fn func()) {
	if t.Cancelled() {
		return
	}
	if err := w.submit(queuedJob{task: t, fn: fn}); err != nil {
		t.Cancel()
		if errors.Is(err, ErrSchedulerClosed) {
			droppedTotal.WithLabelValues("closed").Inc()
			c.log.Debug().Uint64("task", t.id).Str("worker", w.name).Msg("task dropped after shutdown")
			return
		}
		droppedTotal.WithLabelValues("queue_full").Inc()
		c.log.Warn().Err(err).Uint64("task", t.id).Str("worker", w.name).Msg("task dropped")
	}
}

// later enqueues fn on the worker chosen at fire time.
func (c *core) later(pick func() *worker, t *Task, delay time.Duration, fn func()) {
	t.arm(delay, func() {
		c.dispatch(pick(), t, fn)
	})
}

// every enqueues fn after initialDelay and then once per period until the
// task is cancelled or the scheduler stops.
func (c *core) every(pick func() *worker, t *Task, initialDelay, period time.Duration, fn func()) {
	var fire func()
	fire = func() {
		if t.Cancelled() || c.closed.Load() {
			return
		}
		c.dispatch(pick(), t, fn)
		t.arm(period, fire)
	}
	t.arm(initialDelay, fire)
}

func (c *core) runAsync(fn func()) *Task {
	t := c.newTask(scopeAsync)

	c.mu.RLock()
	if c.closed.Load() {
		c.mu.RUnlock()
		t.Cancel()
		droppedTotal.WithLabelValues("closed").Inc()
		return t
	}
	c.async.Add(1)
	c.mu.RUnlock()

	go func() {
		defer c.async.Done()
		if err := c.asyncSe.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer c.asyncSe.Release(1)
		defer func() {
			if r := recover(); r != nil {
				panicsTotal.WithLabelValues(scopeAsync).Inc()
				c.log.Error().Uint64("task", t.id).Interface("panic", r).Msg("async task panicked")
			}
		}()
		t.invoke(fn)
	}()
	return t
}

// stop signals every worker to drain and exit, then waits for workers and
// in-flight async work. It is idempotent.
func (c *core) stop() {
	c.mu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Info().Msg("scheduler stopping, draining workers")
	close(c.done)
	c.workers.Wait()
	c.async.Wait()
	c.log.Info().Msg("scheduler stopped")
}

// HealthPing succeeds while the coordination worker is accepting and running work.
func healthPing(ctx context.Context, c *core, w *worker) error {
	if c.closed.Load() {
		return ErrSchedulerClosed
	}
	return w.barrier(ctx)
}
