package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/model"
)

var (
	overworld = model.Location{World: "overworld", X: 10, Y: 64, Z: -3}
	nether    = model.Location{World: "nether", X: 40, Y: -100, Z: 8}
)

func TestGrant_StartsFullTimer(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.online(actor, overworld)

	v := f.grant(t, actor)

	assert.Equal(t, t0.Add(24*time.Hour), v.TimerEnd)
	assert.Equal(t, int64(86400), v.RemainingSeconds)
	assert.Equal(t, 1, f.eng.Counts().Held)
	h, ok := f.holder(actor)
	require.True(t, ok)
	assert.NotNil(t, h.AuraTask)
	assert.NotNil(t, h.HeartbeatTask)

	give := f.world.sent(model.CmdGiveRelic)
	require.Len(t, give, 1)
	assert.Equal(t, v.RelicID, give[0].Relic)
	assert.Len(t, f.events.named("CREATE"), 1)
	assert.Positive(t, f.dirty.count())
	f.requireInvariants(t)
}

func TestGrant_RefusesHolderAndCapacity(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxRelics = 2 })
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	f.grant(t, a)
	_, err := f.eng.Grant(t.Context(), a)
	require.ErrorIs(t, err, model.ErrAlreadyHolder)

	f.grant(t, b)
	_, err = f.eng.Grant(t.Context(), c)
	require.ErrorIs(t, err, model.ErrCapacity)

	_, ok := f.holder(c)
	assert.False(t, ok)
	assert.Equal(t, 2, f.store.Registry().Len())
	f.requireInvariants(t)
}

func TestGrant_ConcurrentNeverExceedsMax(t *testing.T) {
	f := newFixture(t)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.eng.Grant(t.Context(), uuid.New()); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), granted.Load())
	f.requireInvariants(t)
}

func TestDeath_DropsRelicAtDeathLocation(t *testing.T) {
	f := newFixture(t)
	victim := uuid.New()
	f.online(victim, overworld)
	v := f.grant(t, victim)
	before, _ := f.holder(victim)

	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld, Cause: "lava"})

	_, held := f.holder(victim)
	assert.False(t, held)
	assert.True(t, before.AuraTask.Cancelled())
	assert.True(t, before.HeartbeatTask.Cancelled())

	g, ok := f.store.Ground.Load(v.RelicID)
	require.True(t, ok)
	assert.Equal(t, overworld, g.Location)
	assert.Equal(t, t0.Add(300*time.Second), g.TimerEnd)
	assert.Equal(t, victim, g.OwnerID)
	assert.NotNil(t, g.DespawnTask)
	assert.NotNil(t, g.BroadcastTask)

	drops := f.world.sent(model.CmdDropRelic)
	require.Len(t, drops, 1)
	assert.Equal(t, overworld, *drops[0].Location)
	assert.Len(t, f.events.named("DEATH"), 1)
	f.requireInvariants(t)
}

func TestDeath_BlockDropKeepsHolder(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.BlockDropOnDeath = true })
	victim := uuid.New()
	v := f.grant(t, victim)

	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld})

	h, ok := f.holder(victim)
	require.True(t, ok)
	assert.Equal(t, v.TimerEnd, h.TimerEnd)
	assert.Equal(t, 0, f.store.Ground.Len())
	assert.Empty(t, f.world.sent(model.CmdDropRelic))
}

func TestPickup_GivesFreshTimerToNewHolder(t *testing.T) {
	f := newFixture(t)
	victim, picker := uuid.New(), uuid.New()
	f.online(picker, overworld)
	v := f.grant(t, victim)
	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld})
	g, _ := f.store.Ground.Load(v.RelicID)

	f.sched.Advance(30 * time.Second)
	got, err := f.eng.Pickup(t.Context(), model.PickupEvent{Actor: picker, Relic: v.RelicID, Location: overworld})
	require.NoError(t, err)

	assert.Equal(t, t0.Add(30*time.Second).Add(24*time.Hour), got.TimerEnd)
	assert.Equal(t, v.RelicID, got.RelicID)
	_, onGround := f.store.Ground.Load(v.RelicID)
	assert.False(t, onGround)
	assert.True(t, g.DespawnTask.Cancelled())
	assert.True(t, g.BroadcastTask.Cancelled())
	f.requireInvariants(t)

	// The old ground deadline passing must not touch the new holder.
	f.sched.Advance(10 * time.Minute)
	h, ok := f.holder(picker)
	require.True(t, ok)
	assert.Equal(t, v.RelicID, h.RelicID)
	assert.Contains(t, f.world.texts(picker), "personal.pickup")
}

func TestPickup_BlockedAndMissing(t *testing.T) {
	f := newFixture(t)
	victim, holder := uuid.New(), uuid.New()
	v := f.grant(t, victim)
	f.grant(t, holder)
	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld})

	_, err := f.eng.Pickup(t.Context(), model.PickupEvent{Actor: holder, Relic: v.RelicID, Location: overworld})
	require.ErrorIs(t, err, model.ErrAlreadyHolder)
	_, onGround := f.store.Ground.Load(v.RelicID)
	assert.True(t, onGround, "blocked pickup leaves the relic on the ground")
	assert.Contains(t, f.world.texts(holder), "personal.pickup_blocked")

	_, err = f.eng.Pickup(t.Context(), model.PickupEvent{Actor: uuid.New(), Relic: uuid.New(), Location: overworld})
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.eng.Pickup(t.Context(), model.PickupEvent{Relic: v.RelicID})
	require.ErrorIs(t, err, model.ErrValidation)
	f.requireInvariants(t)
}

func TestGround_DespawnsWhenTimerElapses(t *testing.T) {
	f := newFixture(t)
	victim := uuid.New()
	v := f.grant(t, victim)
	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld})
	g, _ := f.store.Ground.Load(v.RelicID)

	f.sched.Advance(299 * time.Second)
	_, ok := f.store.Ground.Load(v.RelicID)
	require.True(t, ok)
	assert.NotEmpty(t, f.world.sent(model.CmdAnnounce), "location broadcasts while on the ground")

	f.sched.Advance(time.Second)
	_, ok = f.store.Ground.Load(v.RelicID)
	assert.False(t, ok)
	_, _, held := f.store.HolderOf(v.RelicID)
	assert.False(t, held)
	assert.Equal(t, 0, f.store.Registry().Len())
	assert.True(t, g.DespawnTask.Cancelled())
	assert.True(t, g.BroadcastTask.Cancelled())
	assert.Equal(t, 0, f.sched.Pending(), "no timers left behind")

	rv, err := f.eng.Relic(v.RelicID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDestroyed, rv.State)

	despawns := f.events.named("DESPAWN")
	require.Len(t, despawns, 1)
	assert.Equal(t, "timeout", despawns[0].Reason)
	require.Len(t, f.world.sent(model.CmdPurgeRelic), 1)
}

func TestDespawnEvent_DestroysGroundRelic(t *testing.T) {
	f := newFixture(t)
	victim := uuid.New()
	v := f.grant(t, victim)
	f.eng.Death(model.DeathEvent{Victim: victim, Location: overworld})

	f.eng.Despawn(model.DespawnEvent{Relic: v.RelicID})

	assert.Equal(t, 0, f.store.Ground.Len())
	assert.Equal(t, "item_despawned", f.events.named("DESPAWN")[0].Reason)
	f.requireInvariants(t)
}

func TestKill_WorthyResetsTimer(t *testing.T) {
	f := newFixture(t)
	killer, victim := uuid.New(), uuid.New()
	f.grant(t, killer)
	f.sched.Advance(2 * time.Minute)

	f.eng.Damage(model.DamageEvent{Victim: victim, Attacker: killer, Amount: 5})
	f.eng.Damage(model.DamageEvent{Victim: victim, Attacker: killer, Amount: 5})
	f.eng.Damage(model.DamageEvent{Victim: killer, Attacker: victim, Amount: 5})
	f.eng.Death(model.DeathEvent{Victim: victim, Killer: killer, Location: overworld})

	now := f.sched.Now()
	h, ok := f.holder(killer)
	require.True(t, ok)
	assert.Equal(t, now.Add(24*time.Hour), h.TimerEnd)
	assert.True(t, h.TimerEnd.After(now))
	assert.Equal(t, victim, h.LastKill)

	kills := f.events.named("KILL")
	require.Len(t, kills, 1)
	assert.Equal(t, "worthy", kills[0].Outcome)
	assert.Contains(t, f.world.texts(killer), "combat.satisfied")
}

func TestKill_EscalatedFloorRejectsLowDamage(t *testing.T) {
	f := newFixture(t)
	killer, victim := uuid.New(), uuid.New()
	f.grant(t, killer)
	f.sched.Advance(60 * time.Minute)
	before, _ := f.holder(killer)

	// 8 damage saturates the score but the floor after 60 minutes is 38.
	f.eng.Damage(model.DamageEvent{Victim: victim, Attacker: killer, Amount: 4})
	f.eng.Damage(model.DamageEvent{Victim: victim, Attacker: killer, Amount: 4})
	f.eng.Damage(model.DamageEvent{Victim: killer, Attacker: victim, Amount: 5})
	f.eng.Death(model.DeathEvent{Victim: victim, Killer: killer, VictimArmor: 4, Location: overworld})

	after, _ := f.holder(killer)
	assert.Equal(t, before.TimerEnd, after.TimerEnd)
	kills := f.events.named("KILL")
	require.Len(t, kills, 1)
	assert.Equal(t, "rejected", kills[0].Outcome)
	assert.Equal(t, combat.ReasonBelowMinimum, kills[0].Reason)
	assert.Contains(t, f.world.texts(killer), "combat.weak")
}

func TestKill_ByNonHolderOnlyClearsCombat(t *testing.T) {
	f := newFixture(t)
	killer, victim := uuid.New(), uuid.New()
	f.eng.Damage(model.DamageEvent{Victim: victim, Attacker: killer, Amount: 5})

	f.eng.Death(model.DeathEvent{Victim: victim, Killer: killer, Location: overworld})

	assert.Empty(t, f.events.named("KILL"))
	assert.Equal(t, 0, f.store.AttackerCount(victim))
}

func TestEffects_RestartGivesFreshHandles(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.online(actor, overworld)
	f.grant(t, actor)
	first, _ := f.holder(actor)

	f.eng.Quit(model.QuitEvent{Actor: actor})
	h, _ := f.holder(actor)
	assert.Nil(t, h.AuraTask)
	assert.Nil(t, h.HeartbeatTask)
	assert.True(t, first.AuraTask.Cancelled())

	f.eng.Join(model.JoinEvent{Actor: actor, Location: overworld})
	second, _ := f.holder(actor)
	require.NotNil(t, second.AuraTask)
	assert.NotSame(t, first.AuraTask, second.AuraTask)
	assert.NotSame(t, first.HeartbeatTask, second.HeartbeatTask)
	assert.False(t, second.AuraTask.Cancelled())
}

func TestEffects_PulsesFollowRemainingTime(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.online(actor, overworld)
	f.grant(t, actor)

	f.sched.Advance(time.Second)
	auras := f.world.sent(model.CmdAura)
	require.NotEmpty(t, auras)
	assert.Equal(t, AuraCalm, auras[len(auras)-1].Intensity)
	assert.Empty(t, f.world.sent(model.CmdHeartbeat))

	_, err := f.eng.AdjustTimer(t.Context(), actor, model.TimerRemove, 86400-30)
	require.NoError(t, err)
	f.sched.Advance(2 * time.Second)

	auras = f.world.sent(model.CmdAura)
	assert.Equal(t, AuraStarving, auras[len(auras)-1].Intensity)
	beats := f.world.sent(model.CmdHeartbeat)
	require.NotEmpty(t, beats)
	assert.Greater(t, beats[len(beats)-1].Pitch, 0.5)
	assert.Less(t, beats[len(beats)-1].Pitch, 2.0)
}

func TestEffectCurves(t *testing.T) {
	assert.Equal(t, AuraCalm, auraIntensity(13*time.Hour, 24*time.Hour))
	assert.Equal(t, AuraRestless, auraIntensity(3*time.Hour, 24*time.Hour))
	assert.Equal(t, AuraStarving, auraIntensity(time.Hour, 24*time.Hour))

	assert.InDelta(t, 2.0, heartbeatPitch(0, time.Minute, 0.5, 2), 1e-9)
	assert.InDelta(t, 1.25, heartbeatPitch(30*time.Second, time.Minute, 0.5, 2), 1e-9)
	assert.InDelta(t, 0.5, heartbeatPitch(2*time.Minute, time.Minute, 0.5, 2), 1e-9)
}

func TestSweep_AbandonsExpiredHolder(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	v := f.grant(t, actor)

	f.sched.Advance(24 * time.Hour)
	stats := f.eng.Sweep()
	assert.Equal(t, 1, stats.Abandoned)

	_, ok := f.holder(actor)
	assert.False(t, ok)
	assert.Equal(t, 0, f.store.Registry().Len())
	rv, err := f.eng.Relic(v.RelicID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDestroyed, rv.State)
	_, pending := f.store.Pending.Load(actor)
	assert.True(t, pending, "strip is queued with the removal")
	assert.Empty(t, f.world.sent(model.CmdPurgeRelic), "purge waits for the grace delay")

	f.sched.Advance(3 * time.Second)
	_, pending = f.store.Pending.Load(actor)
	assert.True(t, pending, "offline actor is stripped on next join")
	purges := f.world.sent(model.CmdPurgeRelic)
	require.Len(t, purges, 1)
	assert.Equal(t, v.RelicID, purges[0].Relic)
	abandons := f.events.named("ABANDON")
	require.Len(t, abandons, 1)
	assert.Equal(t, "hunger", abandons[0].Reason)
	f.requireInvariants(t)
}

func TestAbandon_OnlineActorIsStripped(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.online(actor, overworld)
	v := f.grant(t, actor)
	_, err := f.eng.AdjustTimer(t.Context(), actor, model.TimerRemove, 86400-5)
	require.NoError(t, err)

	f.sched.Advance(5 * time.Second)
	f.eng.Sweep()
	f.sched.Advance(3 * time.Second)

	strips := f.world.sent(model.CmdStripRelic)
	require.Len(t, strips, 1)
	assert.Equal(t, v.RelicID, strips[0].Relic)
	_, pending := f.store.Pending.Load(actor)
	assert.False(t, pending)
	assert.Contains(t, f.world.texts(actor), "personal.abandoned")
}

func TestAbandon_CleanupSkipsNewerRelic(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.grant(t, actor)
	f.sched.Advance(24 * time.Hour)
	f.eng.Sweep()

	// A new grant lands inside the grace window.
	fresh := f.grant(t, actor)
	f.sched.Advance(3 * time.Second)

	h, ok := f.holder(actor)
	require.True(t, ok)
	assert.Equal(t, fresh.RelicID, h.RelicID)
	_, pending := f.store.Pending.Load(actor)
	assert.False(t, pending)
	assert.Empty(t, f.events.named("ABANDON"))
	f.requireInvariants(t)
}

func TestVoid_RelocatesGroundRelicKeepingTimer(t *testing.T) {
	f := newFixture(t)
	victim := uuid.New()
	v := f.grant(t, victim)
	f.eng.Death(model.DeathEvent{Victim: victim, Location: nether})
	before, _ := f.store.Ground.Load(v.RelicID)
	f.sched.Advance(60 * time.Second)

	f.eng.Void(model.VoidEvent{Relic: v.RelicID, Location: nether})

	g, ok := f.store.Ground.Load(v.RelicID)
	require.True(t, ok)
	assert.Equal(t, f.world.SafeLocation("nether"), g.Location)
	assert.Equal(t, before.TimerEnd, g.TimerEnd)
	assert.True(t, before.DespawnTask.Cancelled())
	assert.NotSame(t, before.DespawnTask, g.DespawnTask)

	drops := f.world.sent(model.CmdDropRelic)
	assert.Equal(t, f.world.SafeLocation("nether"), *drops[len(drops)-1].Location)

	f.sched.Advance(240 * time.Second)
	_, ok = f.store.Ground.Load(v.RelicID)
	assert.False(t, ok, "relocated relic still despawns at its original deadline")
	f.requireInvariants(t)
}

func TestVoid_AdoptsUntrackedRelic(t *testing.T) {
	f := newFixture(t)
	relic := uuid.New()

	f.eng.Void(model.VoidEvent{Relic: relic, Location: nether})

	g, ok := f.store.Ground.Load(relic)
	require.True(t, ok)
	assert.Equal(t, t0.Add(300*time.Second), g.TimerEnd)
	assert.Equal(t, 1, f.store.Registry().Len())
	assert.Equal(t, "adopted", f.events.named("VOID_RECOVERY")[0].Outcome)
	f.requireInvariants(t)
}

func TestVoid_PurgesWhatCannotBeTracked(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxRelics = 1 })
	holder := uuid.New()
	v := f.grant(t, holder)

	f.eng.Void(model.VoidEvent{Relic: v.RelicID, Location: nether})
	assert.Equal(t, 0, f.store.Ground.Len(), "held relic is left alone")

	f.eng.Void(model.VoidEvent{Relic: uuid.New(), Location: nether})
	assert.Equal(t, 0, f.store.Ground.Len(), "no room for another relic")

	require.NoError(t, f.eng.Revoke(t.Context(), holder))
	f.eng.Void(model.VoidEvent{Relic: v.RelicID, Location: nether})
	assert.Equal(t, 0, f.store.Ground.Len(), "destroyed ids stay destroyed")

	assert.Len(t, f.world.sent(model.CmdPurgeRelic), 2)
	f.requireInvariants(t)
}

func TestCraft_MintsRelic(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.online(actor, overworld)

	v, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor, Location: overworld})
	require.NoError(t, err)

	assert.Equal(t, t0.Add(24*time.Hour), v.TimerEnd)
	assert.True(t, v.Online)
	created := f.events.named("CREATE")
	require.Len(t, created, 1)
	assert.Equal(t, "crafted", created[0].Outcome)
	announces := f.world.sent(model.CmdAnnounce)
	require.NotEmpty(t, announces)
	assert.Equal(t, "announce.forged", announces[0].Text)
}

func TestCraft_Refusals(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.CraftingEnabled = false })
		_, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: uuid.New()})
		require.ErrorIs(t, err, model.ErrDisabled)
		assert.Equal(t, 0, f.eng.Counts().Craftable)
	})

	t.Run("holder", func(t *testing.T) {
		f := newFixture(t)
		actor := uuid.New()
		f.grant(t, actor)
		_, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.ErrorIs(t, err, model.ErrAlreadyHolder)
	})

	t.Run("capacity", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.MaxRelics = 1 })
		f.grant(t, uuid.New())
		_, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: uuid.New()})
		require.ErrorIs(t, err, model.ErrCapacity)
	})

	t.Run("per actor limit", func(t *testing.T) {
		f := newFixture(t)
		actor := uuid.New()
		_, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.NoError(t, err)
		f.eng.Death(model.DeathEvent{Victim: actor, Location: overworld})
		f.sched.Advance(5 * time.Second)

		_, err = f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("cooldown", func(t *testing.T) {
		f := newFixture(t)
		actor := uuid.New()
		_, err := f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.NoError(t, err)
		require.NoError(t, f.eng.Revoke(t.Context(), actor))

		_, err = f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.ErrorIs(t, err, model.ErrCooldown)
		assert.Contains(t, f.world.texts(actor), "personal.craft_refused")

		f.sched.Advance(3 * time.Second)
		_, err = f.eng.Craft(t.Context(), model.CraftEvent{Actor: actor})
		require.NoError(t, err)
	})
}

func TestBreak_DestroysOnlyMatchingRelic(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	v := f.grant(t, actor)

	f.eng.Break(model.BreakEvent{Actor: actor, Relic: uuid.New()})
	_, ok := f.holder(actor)
	require.True(t, ok)

	f.eng.Break(model.BreakEvent{Actor: actor, Relic: v.RelicID})
	_, ok = f.holder(actor)
	assert.False(t, ok)
	assert.Equal(t, 0, f.store.Registry().Len())
	assert.Len(t, f.events.named("BREAK"), 1)
}

func TestResume_RestartsLoadedGroundSequences(t *testing.T) {
	f := newFixture(t)
	stale, live := uuid.New(), uuid.New()
	f.store.Restore(model.Snapshot{Ground: []model.GroundView{
		{RelicID: stale, Location: overworld, TimerEnd: t0.Add(-time.Second)},
		{RelicID: live, Location: overworld, TimerEnd: t0.Add(time.Minute)},
	}})

	f.eng.Resume([]uuid.UUID{stale, live})
	f.sched.Advance(0)

	_, ok := f.store.Ground.Load(stale)
	assert.False(t, ok, "expired while down")
	g, ok := f.store.Ground.Load(live)
	require.True(t, ok)
	assert.NotNil(t, g.DespawnTask)

	f.sched.Advance(time.Minute)
	assert.Equal(t, 0, f.store.Ground.Len())
	f.requireInvariants(t)
}

func TestJoin_ConsumesPendingRemoval(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	f.grant(t, actor)
	require.NoError(t, f.eng.Revoke(t.Context(), actor))
	_, pending := f.store.Pending.Load(actor)
	require.True(t, pending)

	f.eng.Join(model.JoinEvent{Actor: actor, Name: "Ada", Location: overworld})

	_, pending = f.store.Pending.Load(actor)
	assert.False(t, pending)
	strips := f.world.sent(model.CmdStripRelic)
	require.Len(t, strips, 1)
	assert.Equal(t, uuid.Nil, strips[0].Relic)
	assert.Contains(t, f.world.texts(actor), "personal.removed_offline")
}
