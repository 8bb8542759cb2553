package combat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

const hunger = 24 * time.Hour

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store  *state.Store
	clock  *clock
	engine *Engine
	killer uuid.UUID
	victim uuid.UUID
	relic  uuid.UUID
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &fixture{
		store:  state.New(),
		clock:  &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		killer: uuid.New(),
		victim: uuid.New(),
		relic:  uuid.New(),
	}
	f.engine = New(cfg, f.store, hunger, f.clock.Now, zerolog.Nop())
	return f
}

// hold makes killer a holder whose hold time is heldMinutes.
func (f *fixture) hold(t *testing.T, heldMinutes int64) state.Holder {
	t.Helper()
	require.NoError(t, f.store.Registry().Reserve(f.relic, 3))
	h := state.Holder{
		RelicID:          f.relic,
		TimerEnd:         f.clock.Now().Add(time.Hour),
		LastChance:       true,
		TotalHoldMinutes: heldMinutes,
		Generation:       f.store.NextGeneration(),
	}
	f.store.Holders.Store(f.killer, h)
	return h
}

func (f *fixture) hit(victim, attacker uuid.UUID, amount float64) {
	f.engine.RecordDamage(model.DamageEvent{Victim: victim, Attacker: attacker, Amount: amount})
}

func TestResolveKill_WorthyResetsTimer(t *testing.T) {
	f := newFixture(t, nil)
	f.hold(t, 0)

	f.hit(f.victim, f.killer, 6)
	f.hit(f.killer, f.victim, 6)
	f.clock.Advance(15 * time.Second)
	f.hit(f.victim, f.killer, 6)

	now := f.clock.Now()
	res := f.engine.ResolveKill(f.killer, f.victim, 4)

	require.True(t, res.Worthy, "reason %s score %.2f", res.Reason, res.Score)
	assert.Equal(t, ReasonWorthy, res.Reason)
	assert.Equal(t, now.Add(hunger), res.NewTimerEnd)
	assert.True(t, res.NewTimerEnd.After(now))

	h, ok := f.store.Holders.Load(f.killer)
	require.True(t, ok)
	assert.Equal(t, now.Add(hunger), h.TimerEnd)
	assert.Equal(t, f.victim, h.LastKill)
	assert.False(t, h.LastChance)
	assert.Equal(t, now, h.SessionStart)

	_, ok = f.store.Damage(f.victim, f.killer)
	assert.False(t, ok, "victim combat data must be cleared")
}

func TestResolveKill_ScoreComponents(t *testing.T) {
	f := newFixture(t, nil)
	f.hold(t, 0)

	f.hit(f.victim, f.killer, 5)
	f.clock.Advance(15 * time.Second)
	f.hit(f.victim, f.killer, 5)
	f.hit(f.killer, f.victim, 2.5)
	f.engine.RecordDeflection(model.DeflectionEvent{Victim: f.victim, Attacker: f.killer})

	res := f.engine.Evaluate(f.killer, f.victim, 2, f.clock.Now())
	assert.InDelta(t, 1.0, res.Components.DamageOut, 1e-9)
	assert.InDelta(t, 0.5, res.Components.DamageIn, 1e-9)
	assert.InDelta(t, 0.5, res.Components.Gear, 1e-9)
	assert.InDelta(t, 0.5, res.Components.Duration, 1e-9)
	assert.InDelta(t, 0.5, res.Components.Deflection, 1e-9)
	assert.InDelta(t, 0.30+0.175+0.075+0.075+0.025, res.Score, 1e-9)
}

func TestResolveKill_StaleDamageFails(t *testing.T) {
	f := newFixture(t, nil)
	before := f.hold(t, 0)

	f.hit(f.victim, f.killer, 50)
	f.hit(f.killer, f.victim, 50)
	f.clock.Advance(31 * time.Second)

	res := f.engine.ResolveKill(f.killer, f.victim, 4)
	assert.False(t, res.Worthy)
	assert.Equal(t, ReasonStaleDamage, res.Reason)

	h, _ := f.store.Holders.Load(f.killer)
	assert.Equal(t, before.TimerEnd, h.TimerEnd)
}

func TestResolveKill_NoDamageRecordIsStale(t *testing.T) {
	f := newFixture(t, nil)
	f.hold(t, 0)

	res := f.engine.ResolveKill(f.killer, f.victim, 4)
	assert.False(t, res.Worthy)
	assert.Equal(t, ReasonStaleDamage, res.Reason)
}

// A holder of 60 minutes who dealt only the base floor is refused.
func TestResolveKill_EscalatedFloorRejects(t *testing.T) {
	f := newFixture(t, nil)
	before := f.hold(t, 60)

	f.hit(f.victim, f.killer, 8)
	f.hit(f.killer, f.victim, 10)

	res := f.engine.ResolveKill(f.killer, f.victim, 4)
	assert.False(t, res.Worthy)
	assert.Equal(t, ReasonBelowMinimum, res.Reason)
	assert.Equal(t, int64(60), res.HoldMinutes)
	assert.InDelta(t, 38.0, res.MinimumDamage, 1e-9)

	h, _ := f.store.Holders.Load(f.killer)
	assert.Equal(t, before.TimerEnd, h.TimerEnd)
	assert.True(t, h.LastChance)
}

func TestResolveKill_FloorAppliesRegardlessOfScore(t *testing.T) {
	f := newFixture(t, nil)
	f.hold(t, 0)

	f.hit(f.victim, f.killer, 7.9)
	f.hit(f.killer, f.victim, 20)
	f.engine.RecordDeflection(model.DeflectionEvent{Victim: f.victim, Attacker: f.killer})
	f.engine.RecordDeflection(model.DeflectionEvent{Victim: f.victim, Attacker: f.killer})

	res := f.engine.ResolveKill(f.killer, f.victim, 4)
	assert.Greater(t, res.Score, 0.5)
	assert.False(t, res.Worthy)
	assert.Equal(t, ReasonBelowMinimum, res.Reason)
}

func TestResolveKill_LowScores(t *testing.T) {
	f := newFixture(t, nil)
	f.hold(t, 0)
	f.hit(f.victim, f.killer, 1)
	res := f.engine.ResolveKill(f.killer, f.victim, 0)
	assert.Equal(t, ReasonEasyKill, res.Reason)

	f.hit(f.victim, f.killer, 5)
	res = f.engine.ResolveKill(f.killer, f.victim, 2)
	assert.Equal(t, ReasonBelowThreshold, res.Reason)
	assert.False(t, res.Worthy)
}

func TestResolveKill_NotHolder(t *testing.T) {
	f := newFixture(t, nil)
	f.hit(f.victim, f.killer, 20)

	res := f.engine.ResolveKill(f.killer, f.victim, 4)
	assert.Equal(t, ReasonNotHolder, res.Reason)
	_, ok := f.store.Damage(f.victim, f.killer)
	assert.False(t, ok)
}

func TestResolveKill_Disabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AwardKills = false })
	f.hold(t, 0)
	f.hit(f.victim, f.killer, 20)
	f.hit(f.killer, f.victim, 20)
	assert.Equal(t, ReasonAwardsDisabled, f.engine.ResolveKill(f.killer, f.victim, 4).Reason)

	g := newFixture(t, func(c *Config) { c.Enabled = false })
	g.hold(t, 0)
	assert.False(t, g.engine.RecordDamage(model.DamageEvent{Victim: g.victim, Attacker: g.killer, Amount: 5}))
	assert.Equal(t, ReasonCombatDisabled, g.engine.ResolveKill(g.killer, g.victim, 4).Reason)
}

func TestRecordDamage_IgnoresSelfAndZero(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.engine.RecordDamage(model.DamageEvent{Victim: f.killer, Attacker: f.killer, Amount: 3}))
	assert.False(t, f.engine.RecordDamage(model.DamageEvent{Victim: f.victim, Attacker: f.killer, Amount: 0}))
	assert.False(t, f.engine.RecordDamage(model.DamageEvent{Victim: f.victim, Attacker: uuid.Nil, Amount: 3}))
	assert.Equal(t, 0, f.store.AttackerCount(f.victim))
}

func TestDeflectionOutsideWindowIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.RecordDeflection(model.DeflectionEvent{Victim: f.victim, Attacker: f.killer})
	f.clock.Advance(601 * time.Second)
	f.hit(f.victim, f.killer, 5)

	res := f.engine.Evaluate(f.killer, f.victim, 0, f.clock.Now())
	assert.Zero(t, res.Components.Deflection)
}

func TestPruneDropsOldDamage(t *testing.T) {
	f := newFixture(t, nil)
	f.hit(f.victim, f.killer, 5)
	f.clock.Advance(61 * time.Second)

	st := f.engine.Prune()
	assert.Equal(t, 1, st.Damage)
	assert.Equal(t, 0, f.store.AttackerCount(f.victim))
}

func TestMinimumDamage(t *testing.T) {
	f := newFixture(t, nil)
	assert.InDelta(t, 8.0, f.engine.MinimumDamage(0), 1e-9)
	assert.InDelta(t, 38.0, f.engine.MinimumDamage(60), 1e-9)
}
