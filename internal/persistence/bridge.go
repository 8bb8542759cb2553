package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/health"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/state"
)

var (
	flushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relic",
		Subsystem: "persistence",
		Name:      "flush_total",
		Help:      "Snapshot writes, by backend and outcome.",
	}, []string{"backend", "outcome"})
	flushSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relic",
		Subsystem: "persistence",
		Name:      "flush_seconds",
		Help:      "Snapshot write time, by backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)

// Bridge connects the store to a Backend. Writes happen off the game
// workers; a failed write leaves the state dirty for the next flush.
type Bridge struct {
	backend Backend
	store   *state.Store
	sched   scheduler.Scheduler
	now     func() time.Time
	timeout time.Duration
	log     zerolog.Logger

	dirty atomic.Bool
	seq   atomic.Uint64

	// mu serializes writes; written is the newest snapshot sequence saved.
	mu      sync.Mutex
	written uint64
}

func NewBridge(backend Backend, store *state.Store, sched scheduler.Scheduler, now func() time.Time, timeout time.Duration, log zerolog.Logger) *Bridge {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		backend: backend,
		store:   store,
		sched:   sched,
		now:     now,
		timeout: timeout,
		log:     log.With().Str("component", "persistence").Str("backend", backend.Name()).Logger(),
	}
}

// Load restores the saved snapshot into the store and returns the ground
// relic ids whose despawn sequences must be resumed.
func (b *Bridge) Load(ctx context.Context) ([]uuid.UUID, error) {
	snap, err := b.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	dupes := b.store.Restore(snap)
	for _, id := range dupes {
		b.log.Warn().Str("relic", id.String()).Msg("relic id saved twice; kept the first record")
	}
	if len(dupes) > 0 {
		b.MarkDirty()
	}
	ground := b.store.Ground.Keys()
	b.log.Info().
		Int("holders", b.store.Holders.Len()).
		Int("ground", len(ground)).
		Int("pending", b.store.Pending.Len()).
		Msg("relic state loaded")
	return ground, nil
}

func (b *Bridge) MarkDirty() { b.dirty.Store(true) }

func (b *Bridge) Dirty() bool { return b.dirty.Load() }

// Flush snapshots the store and writes it on the async scope. Without force
// it does nothing while the state is clean.
func (b *Bridge) Flush(force bool) {
	if !b.dirty.Swap(false) && !force {
		return
	}
	seq := b.seq.Add(1)
	snap := b.store.Snapshot(b.now())
	t := b.sched.RunAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.save(ctx, seq, snap); err != nil {
			b.dirty.Store(true)
		}
	})
	if t.Cancelled() {
		b.dirty.Store(true)
		b.log.Warn().Msg("flush not scheduled; state stays dirty")
	}
}

// FlushSync writes the current state on the calling goroutine. Shutdown uses
// it after the workers have stopped.
func (b *Bridge) FlushSync(ctx context.Context) error {
	b.dirty.Store(false)
	seq := b.seq.Add(1)
	if err := b.save(ctx, seq, b.store.Snapshot(b.now())); err != nil {
		b.dirty.Store(true)
		return err
	}
	return nil
}

// save writes snap unless a newer snapshot was already written.
func (b *Bridge) save(ctx context.Context, seq uint64, snap model.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq <= b.written {
		return nil
	}
	name := b.backend.Name()
	start := time.Now()
	err := b.backend.Save(ctx, snap)
	flushSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		flushTotal.WithLabelValues(name, "error").Inc()
		b.log.Error().Stack().Err(err).Msg("flush failed; state stays dirty")
		return err
	}
	flushTotal.WithLabelValues(name, "ok").Inc()
	b.written = seq
	b.log.Debug().
		Int("holders", len(snap.Holders)).
		Int("ground", len(snap.Ground)).
		Dur("took", time.Since(start)).
		Msg("state flushed")
	return nil
}

// Close writes the state one last time and closes the backend.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.FlushSync(ctx)
	if cerr := b.backend.Close(); err == nil {
		err = cerr
	}
	return err
}

// Name and HealthPing let the health checker probe the backend.
func (b *Bridge) Name() string { return "persistence" }

func (b *Bridge) HealthPing(ctx context.Context) error {
	if p, ok := b.backend.(health.HealthPinger); ok {
		return p.HealthPing(ctx)
	}
	return nil
}
