// Package jobs runs the periodic background work of the service on the
// global scheduling scope: the expiry sweep, the persistence flush, holder
// whispers and the combat record prune.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/lifecycle"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/state"
)

// Config is loaded with prefix RELIC_JOBS_.
type Config struct {
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"10s"`
	FlushInterval   time.Duration `envconfig:"FLUSH_INTERVAL" default:"30s"`
	WhisperInterval time.Duration `envconfig:"WHISPER_INTERVAL" default:"150s"`
	PruneInterval   time.Duration `envconfig:"PRUNE_INTERVAL" default:"60s"`
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:   10 * time.Second,
		FlushInterval:   30 * time.Second,
		WhisperInterval: 150 * time.Second,
		PruneInterval:   60 * time.Second,
	}
}

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relic",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job runs, by job.",
	}, []string{"job"})
	runSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relic",
		Subsystem: "jobs",
		Name:      "run_seconds",
		Help:      "Background job run time, by job.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"job"})
)

// Lifecycle is the part of the lifecycle engine the jobs drive.
type Lifecycle interface {
	Sweep() lifecycle.SweepStats
	Whisper() int
}

// Pruner drops stale combat records.
type Pruner interface {
	Prune() state.PruneStats
}

// Flusher writes dirty state out; force writes even when clean.
type Flusher interface {
	Flush(force bool)
}

var ErrAlreadyStarted = errors.New("jobs already started")

type Runner struct {
	cfg     Config
	sched   scheduler.Scheduler
	life    Lifecycle
	pruner  Pruner
	flusher Flusher
	log     zerolog.Logger

	mu    sync.Mutex
	tasks []*scheduler.Task
}

func NewRunner(cfg Config, sched scheduler.Scheduler, life Lifecycle, pruner Pruner, flusher Flusher, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		sched:   sched,
		life:    life,
		pruner:  pruner,
		flusher: flusher,
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

type job struct {
	name   string
	period time.Duration
	fn     func()
}

func (r *Runner) jobs() []job {
	var out []job
	if r.life != nil {
		out = append(out,
			job{"sweep", r.cfg.SweepInterval, r.sweep},
			job{"whisper", r.cfg.WhisperInterval, r.whisper},
		)
	}
	if r.flusher != nil {
		out = append(out, job{"flush", r.cfg.FlushInterval, func() { r.flusher.Flush(false) }})
	}
	if r.pruner != nil {
		out = append(out, job{"prune", r.cfg.PruneInterval, r.prune})
	}
	return out
}

// Start schedules every job. Each first runs one period after Start.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks != nil {
		return ErrAlreadyStarted
	}

	var tasks []*scheduler.Task
	for _, j := range r.jobs() {
		t, err := r.sched.RunRepeating(j.period, j.period, r.instrument(j.name, j.fn))
		if err != nil {
			for _, started := range tasks {
				started.Cancel()
			}
			return fmt.Errorf("schedule %s job every %s: %w", j.name, j.period, err)
		}
		tasks = append(tasks, t)
		r.log.Info().Str("job", j.name).Dur("period", j.period).Msg("job scheduled")
	}
	r.tasks = tasks
	return nil
}

// Stop cancels every job. It is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		t.Cancel()
	}
	if r.tasks != nil {
		r.log.Info().Msg("jobs stopped")
	}
	r.tasks = []*scheduler.Task{}
}

func (r *Runner) instrument(name string, fn func()) func() {
	return func() {
		start := time.Now()
		fn()
		runsTotal.WithLabelValues(name).Inc()
		runSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func (r *Runner) sweep() {
	stats := r.life.Sweep()
	if stats.Abandoned > 0 || stats.Despawned > 0 {
		r.log.Info().Int("abandoned", stats.Abandoned).Int("despawned", stats.Despawned).Msg("sweep")
	}
}

func (r *Runner) whisper() {
	if n := r.life.Whisper(); n > 0 {
		r.log.Debug().Int("sent", n).Msg("whispers")
	}
}

func (r *Runner) prune() {
	stats := r.pruner.Prune()
	if stats.Evicted > 0 {
		r.log.Warn().Int("evicted", stats.Evicted).Msg("combat records evicted over capacity")
	}
}
