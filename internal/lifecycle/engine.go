// Package lifecycle is the relic state machine. Every relic id is held by one
// actor, rests on the ground at one location, or is destroyed; the engine
// moves ids between those states in response to world events, background
// sweeps and administrative commands.
//
// Work is always submitted through the scheduler: actor events run at the
// actor's scope, ground events at the location's scope and cross-cutting work
// (sweeps, admin, despawn) at the global scope. Records are only ever changed
// through single-entry atomic updates, and a record's tasks are cancelled
// inside the same update that removes it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/state"
)

// ErrRejected is returned by awaited operations whose work the scheduler
// refused (queue full or shutting down).
var ErrRejected = errors.New("work rejected by scheduler")

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relic",
	Subsystem: "lifecycle",
	Name:      "transitions_total",
	Help:      "Lifecycle events recorded, by event.",
}, []string{"event"})

// World is what the engine needs to know about, and say to, the game.
type World interface {
	Online(actor uuid.UUID) bool
	LocationOf(actor uuid.UUID) (model.Location, bool)
	Name(actor uuid.UUID) string
	SafeLocation(world string) model.Location
	Join(actor uuid.UUID, name string, loc model.Location)
	Quit(actor uuid.UUID)
	Move(actor uuid.UUID, loc model.Location)
	Dispatch(cmd model.Command)
}

// Narrator renders the text for a narration category.
type Narrator interface {
	Render(relic uuid.UUID, category string, vars map[string]any) string
}

// Recorder receives one entry per lifecycle event.
type Recorder interface {
	Record(e eventlog.Entry)
}

// Dirtier is told whenever persistent state changed.
type Dirtier interface {
	MarkDirty()
}

type Deps struct {
	Scheduler scheduler.Scheduler
	Store     *state.Store
	Combat    *combat.Engine
	World     World
	Narrator  Narrator
	Events    Recorder
	Dirty     Dirtier

	// Now and Rand default to time.Now and math/rand/v2.
	Now  func() time.Time
	Rand func() float64
	Log  zerolog.Logger
}

type Engine struct {
	cfg    Config
	sched  scheduler.Scheduler
	store  *state.Store
	combat *combat.Engine
	world  World
	narr   Narrator
	events Recorder
	dirty  Dirtier
	now    func() time.Time
	rand   func() float64
	log    zerolog.Logger

	// destroyed remembers when recently destroyed ids went away so lookups
	// can tell destroyed from never existed.
	destroyed *state.Map[uuid.UUID, time.Time]
}

func New(cfg Config, d Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle config: %w", err)
	}
	if d.Scheduler == nil || d.Store == nil || d.Combat == nil || d.World == nil || d.Narrator == nil {
		return nil, fmt.Errorf("lifecycle: scheduler, store, combat, world and narrator are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = eventlog.New(nopWriter{}, d.Now)
	}
	if d.Rand == nil {
		d.Rand = rand.Float64
	}
	return &Engine{
		cfg:       cfg,
		sched:     d.Scheduler,
		store:     d.Store,
		combat:    d.Combat,
		world:     d.World,
		narr:      d.Narrator,
		events:    d.Events,
		dirty:     d.Dirty,
		now:       d.Now,
		rand:      d.Rand,
		log:       d.Log.With().Str("component", "lifecycle").Logger(),
		destroyed: state.NewMap[uuid.UUID, time.Time](0, state.HashUUID),
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// call submits fn through submit and waits for its result.
func call[T any](ctx context.Context, submit func(func()) *scheduler.Task, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	t := submit(func() {
		v, err := fn()
		done <- result{v, err}
	})

	var zero T
	if t.Cancelled() {
		select {
		case r := <-done:
			return r.v, r.err
		default:
			return zero, ErrRejected
		}
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (e *Engine) onGlobal(ctx context.Context, fn func() error) error {
	_, err := call(ctx, e.sched.RunNow, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// takeHolder removes actor's record if match accepts it (nil matches all),
// cancelling its effects in the same update.
func (e *Engine) takeHolder(actor uuid.UUID, match func(state.Holder) bool) (state.Holder, bool) {
	var (
		out   state.Holder
		taken bool
	)
	e.store.Holders.Update(actor, func(h state.Holder, ok bool) (state.Holder, bool) {
		if !ok || (match != nil && !match(h)) {
			return h, ok
		}
		h.StopEffects()
		out, taken = h, true
		return h, false
	})
	return out, taken
}

// takeGround removes a ground record, cancelling its sequence in the same update.
func (e *Engine) takeGround(relic uuid.UUID, match func(state.Ground) bool) (state.Ground, bool) {
	var (
		out   state.Ground
		taken bool
	)
	e.store.Ground.Update(relic, func(g state.Ground, ok bool) (state.Ground, bool) {
		if !ok || (match != nil && !match(g)) {
			return g, ok
		}
		g.StopSequence()
		out, taken = g, true
		return g, false
	})
	return out, taken
}

// destroy marks relic as gone for good. Its records must already be removed.
func (e *Engine) destroy(relic uuid.UUID) {
	e.store.Registry().Release(relic)
	e.destroyed.Store(relic, e.now())
}

func (e *Engine) markDirty() {
	if e.dirty != nil {
		e.dirty.MarkDirty()
	}
}

func (e *Engine) record(entry eventlog.Entry) {
	if entry.ActorName == "" && entry.Actor != uuid.Nil {
		entry.ActorName = e.world.Name(entry.Actor)
	}
	e.events.Record(entry)
	transitionsTotal.WithLabelValues(strings.ToLower(entry.Event)).Inc()
}

// announce broadcasts an announce.<category> line, at most once per
// cooldown for the same category and relic.
func (e *Engine) announce(relic uuid.UUID, category string, vars map[string]any) {
	key := category + ":" + relic.String()
	if !e.store.TryAnnounce(key, e.now(), e.cfg.AnnouncementCooldown) {
		return
	}
	text := e.narr.Render(relic, "announce."+category, vars)
	if text == "" {
		return
	}
	e.world.Dispatch(model.Command{Kind: model.CmdAnnounce, Relic: relic, Text: text})
}

// tell sends a narration line to one actor.
func (e *Engine) tell(actor, relic uuid.UUID, category string, vars map[string]any) {
	text := e.narr.Render(relic, category, vars)
	if text == "" {
		return
	}
	e.world.Dispatch(model.Command{Kind: model.CmdMessage, Actor: actor, Relic: relic, Text: text})
}

func loc(l model.Location) *model.Location { return &l }
