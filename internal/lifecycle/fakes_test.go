package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/scheduler/schedulertest"
	"github.com/mycelian/relic-service/internal/state"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// --- Fakes ---

type fakeWorld struct {
	mu     sync.Mutex
	online map[uuid.UUID]model.Location
	cmds   []model.Command
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{online: make(map[uuid.UUID]model.Location)}
}

func (w *fakeWorld) Online(actor uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.online[actor]
	return ok
}

func (w *fakeWorld) LocationOf(actor uuid.UUID) (model.Location, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.online[actor]
	return l, ok
}

func (w *fakeWorld) Name(actor uuid.UUID) string { return actor.String()[:8] }

func (w *fakeWorld) SafeLocation(world string) model.Location {
	return model.Location{World: world, X: 0, Y: 70, Z: 0}
}

func (w *fakeWorld) Join(actor uuid.UUID, _ string, l model.Location) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.online[actor] = l
}

func (w *fakeWorld) Quit(actor uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.online, actor)
}

func (w *fakeWorld) Move(actor uuid.UUID, l model.Location) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.online[actor]; ok {
		w.online[actor] = l
	}
}

func (w *fakeWorld) Dispatch(cmd model.Command) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cmds = append(w.cmds, cmd)
}

// sent returns the dispatched commands of kind.
func (w *fakeWorld) sent(kind model.CommandKind) []model.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []model.Command
	for _, c := range w.cmds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// texts returns the text of every message sent to actor.
func (w *fakeWorld) texts(actor uuid.UUID) []string {
	var out []string
	for _, c := range w.sent(model.CmdMessage) {
		if c.Actor == actor {
			out = append(out, c.Text)
		}
	}
	return out
}

// echoNarrator renders the category name so tests can match on it.
type echoNarrator struct{}

func (echoNarrator) Render(_ uuid.UUID, category string, _ map[string]any) string { return category }

type recordedEvents struct {
	mu      sync.Mutex
	entries []eventlog.Entry
}

func (r *recordedEvents) Record(e eventlog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordedEvents) named(event string) []eventlog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventlog.Entry
	for _, e := range r.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type dirtyCounter struct {
	mu sync.Mutex
	n  int
}

func (d *dirtyCounter) MarkDirty() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func (d *dirtyCounter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// --- Fixture ---

type fixture struct {
	sched  *schedulertest.Manual
	store  *state.Store
	world  *fakeWorld
	events *recordedEvents
	dirty  *dirtyCounter
	roll   float64
	eng    *Engine
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	sched := schedulertest.NewManual(t0)
	f := newFixtureOn(t, func(*fakeWorld) scheduler.Scheduler { return sched }, sched.Now, mutate...)
	f.sched = sched
	return f
}

// newFixtureOn builds an engine on the scheduler returned by newSched, which
// may use the fake world as its actor locator. f.sched stays nil.
func newFixtureOn(t *testing.T, newSched func(*fakeWorld) scheduler.Scheduler, now func() time.Time, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		store:  state.New(),
		world:  newFakeWorld(),
		events: &recordedEvents{},
		dirty:  &dirtyCounter{},
		roll:   1,
	}
	eng, err := New(cfg, Deps{
		Scheduler: newSched(f.world),
		Store:     f.store,
		Combat:    combat.New(combat.DefaultConfig(), f.store, cfg.Hunger, now, zerolog.Nop()),
		World:     f.world,
		Narrator:  echoNarrator{},
		Events:    f.events,
		Dirty:     f.dirty,
		Now:       now,
		Rand:      func() float64 { return f.roll },
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	f.eng = eng
	return f
}

func (f *fixture) online(actor uuid.UUID, l model.Location) { f.world.Join(actor, "", l) }

// grant creates a relic for actor and fails the test on error.
func (f *fixture) grant(t *testing.T, actor uuid.UUID) model.HolderView {
	t.Helper()
	v, err := f.eng.Grant(t.Context(), actor)
	require.NoError(t, err)
	return v
}

func (f *fixture) holder(actor uuid.UUID) (state.Holder, bool) { return f.store.Holders.Load(actor) }

// requireInvariants checks the count and single-state invariants.
func (f *fixture) requireInvariants(t *testing.T) {
	t.Helper()
	limit := f.eng.Config().MaxRelics
	held := map[uuid.UUID]bool{}
	f.store.Holders.Range(func(_ uuid.UUID, h state.Holder) bool {
		held[h.RelicID] = true
		return true
	})
	onGround := 0
	f.store.Ground.Range(func(relic uuid.UUID, _ state.Ground) bool {
		require.False(t, held[relic], "relic %s both held and on the ground", relic)
		onGround++
		return true
	})
	require.LessOrEqual(t, len(held)+onGround, limit)
	require.Equal(t, len(held)+onGround, f.store.Registry().Len(), "registry out of step with records")
}
