package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/model"
)

// Partitioned runs global-scope calls on a coordination worker and
// region-scope calls on the shard owning the region. Regions map to shards by
// a stable hash of the region key, so FIFO order holds per region while
// different regions run in parallel.
type Partitioned struct {
	*core
	coord   *worker
	shards  []*worker
	locator ActorLocator
}

// NewPartitioned starts the coordination worker and cfg.Shards region workers.
// locator may be nil; actors are then routed by a hash of their id.
func NewPartitioned(cfg Config, locator ActorLocator, log zerolog.Logger) *Partitioned {
	cfg = cfg.withDefaults()
	cfg.Mode = ModePartitioned
	c := newCore(cfg, log)
	p := &Partitioned{
		core:    c,
		coord:   newWorker(scopeGlobal, cfg.QueueSize, cfg.EnqueueTimeout, c.done, c.log),
		shards:  make([]*worker, cfg.Shards),
		locator: locator,
	}
	c.start(p.coord)
	for i := range p.shards {
		p.shards[i] = newWorker(fmt.Sprintf("shard-%d", i), cfg.QueueSize, cfg.EnqueueTimeout, c.done, c.log)
		c.start(p.shards[i])
	}
	return p
}

func (p *Partitioned) Mode() Mode { return ModePartitioned }

func (p *Partitioned) pickGlobal() *worker { return p.coord }

func (p *Partitioned) RunNow(fn func()) *Task {
	t := p.newTask(scopeGlobal)
	p.dispatch(p.coord, t, fn)
	return t
}

func (p *Partitioned) RunDelayed(delay time.Duration, fn func()) *Task {
	t := p.newTask(scopeGlobal)
	p.later(p.pickGlobal, t, delay, fn)
	return t
}

func (p *Partitioned) RunRepeating(initialDelay, period time.Duration, fn func()) (*Task, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	t := p.newTask(scopeGlobal)
	p.every(p.pickGlobal, t, initialDelay, period, fn)
	return t, nil
}

func (p *Partitioned) RunAtLocation(loc model.Location, fn func()) *Task {
	key := model.RegionOf(loc, p.cfg.RegionSize).Key()
	t := p.newTask("region:" + key)
	p.dispatch(p.shardFor(key), t, fn)
	return t
}

// RunAtActor routes to the shard owning the actor's current region. The
// region is resolved at submit time; an actor crossing a border afterwards
// does not move already queued work.
func (p *Partitioned) RunAtActor(actor uuid.UUID, fn func()) *Task {
	key := p.actorKey(actor)
	t := p.newTask("region:" + key)
	p.dispatch(p.shardFor(key), t, fn)
	return t
}

func (p *Partitioned) RunAsync(fn func()) *Task { return p.runAsync(fn) }

// Barrier waits for the coordination worker to run everything queued before it.
func (p *Partitioned) Barrier(ctx context.Context) error { return p.coord.barrier(ctx) }

// BarrierAt waits for the shard owning loc.
func (p *Partitioned) BarrierAt(ctx context.Context, loc model.Location) error {
	return p.shardFor(model.RegionOf(loc, p.cfg.RegionSize).Key()).barrier(ctx)
}

// HealthPing implements health.HealthPinger.
func (p *Partitioned) HealthPing(ctx context.Context) error { return healthPing(ctx, p.core, p.coord) }

// Stop drains every worker and waits for async work. Idempotent.
func (p *Partitioned) Stop() { p.stop() }

// Close lets Partitioned satisfy io.Closer.
func (p *Partitioned) Close() error {
	p.Stop()
	return nil
}

// ShardOf exposes the routing decision for a location.
func (p *Partitioned) ShardOf(loc model.Location) int {
	return p.shardIndex(model.RegionOf(loc, p.cfg.RegionSize).Key())
}

func (p *Partitioned) actorKey(actor uuid.UUID) string {
	if p.locator != nil {
		if loc, ok := p.locator.LocationOf(actor); ok {
			return model.RegionOf(loc, p.cfg.RegionSize).Key()
		}
	}
	return "actor:" + actor.String()
}

func (p *Partitioned) shardFor(key string) *worker {
	return p.shards[p.shardIndex(key)]
}

func (p *Partitioned) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}
