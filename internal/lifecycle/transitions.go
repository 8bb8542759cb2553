package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/combat"
	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// create mints a new relic held by actor with a full timer.
func (e *Engine) create(actor uuid.UUID, origin string) (model.HolderView, error) {
	if e.store.IsHolder(actor) {
		return model.HolderView{}, fmt.Errorf("%s for %s: %w", origin, actor, model.ErrAlreadyHolder)
	}
	relic := uuid.New()
	if err := e.store.Registry().Reserve(relic, e.cfg.MaxRelics); err != nil {
		return model.HolderView{}, fmt.Errorf("%s for %s: %w", origin, actor, err)
	}

	now := e.now()
	h := state.Holder{
		RelicID:      relic,
		TimerEnd:     now.Add(e.cfg.Hunger),
		SessionStart: now,
		Generation:   e.store.NextGeneration(),
	}
	if !e.store.Holders.PutIfAbsent(actor, h) {
		e.store.Registry().Release(relic)
		return model.HolderView{}, fmt.Errorf("%s for %s: %w", origin, actor, model.ErrAlreadyHolder)
	}
	e.store.Pending.Delete(actor)
	e.world.Dispatch(model.Command{Kind: model.CmdGiveRelic, Actor: actor, Relic: relic})
	if e.world.Online(actor) {
		e.startEffects(actor)
	}
	e.markDirty()

	view := h.View(actor, now)
	view.Online = e.world.Online(actor)
	return view, nil
}

// abandon takes the relic away from a holder whose record match accepts.
// The id is destroyed immediately; the physical item is cleaned up after
// the grace delay unless the actor has gained a newer record by then.
func (e *Engine) abandon(actor uuid.UUID, reason string, match func(state.Holder) bool) bool {
	h, ok := e.takeHolder(actor, match)
	if !ok {
		return false
	}
	e.destroy(h.RelicID)
	e.combat.Clear(actor)
	e.tell(actor, h.RelicID, "whisper.breakup", nil)
	e.announce(h.RelicID, "abandoned", map[string]any{"Name": e.world.Name(actor)})
	// Flagged with the removal so a restart inside the grace window still strips.
	e.store.Pending.Store(actor, struct{}{})
	e.markDirty()

	relic, gen := h.RelicID, h.Generation
	e.sched.RunDelayed(e.cfg.AbandonGrace, func() {
		e.finishAbandon(actor, relic, gen, reason)
	})
	return true
}

func (e *Engine) finishAbandon(actor, relic uuid.UUID, gen uint64, reason string) {
	if cur, ok := e.store.Holders.Load(actor); ok && cur.Generation != gen {
		e.log.Debug().
			Str("actor", actor.String()).
			Str("relic", relic.String()).
			Uint64("generation", gen).
			Uint64("current", cur.Generation).
			Msg("abandon cleanup skipped, actor holds a newer relic")
		return
	}

	if e.world.Online(actor) {
		e.world.Dispatch(model.Command{Kind: model.CmdStripRelic, Actor: actor, Relic: relic})
		e.tell(actor, relic, "personal.abandoned", nil)
		e.store.Pending.Delete(actor)
	}
	e.world.Dispatch(model.Command{Kind: model.CmdPurgeRelic, Relic: relic})
	e.announce(relic, "bloodthirst_unmet", map[string]any{"Name": e.world.Name(actor), "Reason": reason})
	e.record(eventlog.Entry{Event: "ABANDON", Actor: actor, Relic: relic, Reason: reason})
	e.log.Info().Str("actor", actor.String()).Str("relic", relic.String()).Str("reason", reason).Msg("relic abandoned")
	e.markDirty()
}

func (e *Engine) handleDeath(ev model.DeathEvent) {
	if ev.Killer != uuid.Nil && ev.Killer != ev.Victim && e.store.IsHolder(ev.Killer) {
		res := e.combat.ResolveKill(ev.Killer, ev.Victim, ev.VictimArmor)
		e.onKillResolved(ev.Killer, ev.Victim, res)
	} else {
		e.combat.Clear(ev.Victim)
	}

	if e.cfg.BlockDropOnDeath {
		if h, ok := e.store.Holders.Load(ev.Victim); ok {
			e.record(eventlog.Entry{Event: "DEATH", Actor: ev.Victim, Relic: h.RelicID, Location: loc(ev.Location), Outcome: "kept", Reason: ev.Cause})
		}
		return
	}

	h, ok := e.takeHolder(ev.Victim, nil)
	if !ok {
		return
	}
	now := e.now()
	e.placeGround(h.RelicID, ev.Location, now.Add(e.cfg.DeathDropTimer), ev.Victim)
	e.announce(h.RelicID, "lost_on_death", map[string]any{
		"Name":     e.world.Name(ev.Victim),
		"Location": ev.Location.String(),
	})
	e.record(eventlog.Entry{
		Event:    "DEATH",
		Actor:    ev.Victim,
		Relic:    h.RelicID,
		Location: loc(ev.Location),
		Outcome:  "dropped",
		Reason:   ev.Cause,
		TimerEnd: now.Add(e.cfg.DeathDropTimer),
		Context:  map[string]any{"killer": ev.Killer.String()},
	})
	e.markDirty()
}

func (e *Engine) onKillResolved(killer, victim uuid.UUID, res combat.Result) {
	vars := map[string]any{"Score": fmt.Sprintf("%.2f", res.Score)}
	switch res.Reason {
	case combat.ReasonWorthy:
		e.tell(killer, res.RelicID, "combat.satisfied", vars)
		e.tell(killer, res.RelicID, "combat.voiceline", nil)
		e.markDirty()
	case combat.ReasonEasyKill:
		e.tell(killer, res.RelicID, "combat.easy", vars)
	case combat.ReasonBelowThreshold, combat.ReasonBelowMinimum, combat.ReasonStaleDamage:
		e.tell(killer, res.RelicID, "combat.weak", vars)
	default:
		return
	}

	outcome := "rejected"
	if res.Worthy {
		outcome = "worthy"
	}
	e.record(eventlog.Entry{
		Event:    "KILL",
		Actor:    killer,
		Relic:    res.RelicID,
		Outcome:  outcome,
		Reason:   res.Reason,
		TimerEnd: res.NewTimerEnd,
		Context: map[string]any{
			"victim":         victim.String(),
			"score":          res.Score,
			"damage_dealt":   res.DamageDealt,
			"minimum_damage": res.MinimumDamage,
			"hold_minutes":   res.HoldMinutes,
		},
	})
}

func (e *Engine) pickup(ev model.PickupEvent) (model.HolderView, error) {
	if e.store.IsHolder(ev.Actor) {
		e.tell(ev.Actor, ev.Relic, "personal.pickup_blocked", nil)
		return model.HolderView{}, fmt.Errorf("pickup %s: %w", ev.Relic, model.ErrAlreadyHolder)
	}
	g, ok := e.takeGround(ev.Relic, nil)
	if !ok {
		e.log.Debug().Str("actor", ev.Actor.String()).Str("relic", ev.Relic.String()).Msg("pickup: no ground record")
		return model.HolderView{}, fmt.Errorf("pickup %s: %w", ev.Relic, model.ErrNotFound)
	}

	now := e.now()
	h := state.Holder{
		RelicID:      ev.Relic,
		TimerEnd:     now.Add(e.cfg.Hunger),
		SessionStart: now,
		Generation:   e.store.NextGeneration(),
	}
	if !e.store.Holders.PutIfAbsent(ev.Actor, h) {
		// Lost a race with another creation for the same actor.
		e.store.Ground.PutIfAbsent(ev.Relic, state.Ground{Location: g.Location, TimerEnd: g.TimerEnd, OwnerID: g.OwnerID})
		e.startSequence(ev.Relic)
		return model.HolderView{}, fmt.Errorf("pickup %s: %w", ev.Relic, model.ErrAlreadyHolder)
	}
	e.store.Pending.Delete(ev.Actor)
	if e.world.Online(ev.Actor) {
		e.startEffects(ev.Actor)
	}
	e.tell(ev.Actor, ev.Relic, "personal.pickup", nil)
	e.record(eventlog.Entry{
		Event:    "PICKUP",
		Actor:    ev.Actor,
		Relic:    ev.Relic,
		Location: loc(ev.Location),
		TimerEnd: h.TimerEnd,
		Context:  map[string]any{"previous_owner": g.OwnerID.String()},
	})
	e.markDirty()

	view := h.View(ev.Actor, now)
	view.Online = e.world.Online(ev.Actor)
	return view, nil
}

func (e *Engine) handleJoin(actor uuid.UUID) {
	if _, pending := e.store.Pending.LoadAndDelete(actor); pending {
		e.world.Dispatch(model.Command{Kind: model.CmdStripRelic, Actor: actor})
		e.tell(actor, uuid.Nil, "personal.removed_offline", nil)
		e.record(eventlog.Entry{Event: "PENDING_STRIP", Actor: actor})
		e.markDirty()
	}
	if h, ok := e.store.Holders.Load(actor); ok && h.TimerEnd.After(e.now()) {
		e.startEffects(actor)
	}
}

func (e *Engine) handleVoid(ev model.VoidEvent) {
	if _, _, held := e.store.HolderOf(ev.Relic); held {
		e.log.Debug().Str("relic", ev.Relic.String()).Msg("void: relic is held")
		return
	}
	safe := e.world.SafeLocation(ev.Location.World)

	relocated := false
	e.store.Ground.Update(ev.Relic, func(g state.Ground, ok bool) (state.Ground, bool) {
		if !ok {
			return g, false
		}
		g.Location = safe
		relocated = true
		return g, true
	})

	outcome := "relocated"
	if !relocated {
		err := e.store.Registry().Reserve(ev.Relic, e.cfg.MaxRelics)
		if _, gone := e.destroyed.Load(ev.Relic); gone || err != nil {
			if err == nil {
				e.store.Registry().Release(ev.Relic)
			}
			e.world.Dispatch(model.Command{Kind: model.CmdPurgeRelic, Relic: ev.Relic})
			e.record(eventlog.Entry{Event: "VOID_RECOVERY", Relic: ev.Relic, Location: loc(ev.Location), Outcome: "purged"})
			return
		}
		e.store.Ground.Store(ev.Relic, state.Ground{Location: safe, TimerEnd: e.now().Add(e.cfg.VoidTimer)})
		outcome = "adopted"
	}

	e.world.Dispatch(model.Command{Kind: model.CmdDropRelic, Relic: ev.Relic, Location: loc(safe)})
	e.startSequence(ev.Relic)
	e.announce(ev.Relic, "void_recovery", map[string]any{"Location": safe.String()})
	e.record(eventlog.Entry{
		Event:    "VOID_RECOVERY",
		Relic:    ev.Relic,
		Location: loc(safe),
		Outcome:  outcome,
		Context:  map[string]any{"from": ev.Location.String()},
	})
	e.markDirty()
}

func (e *Engine) craft(ev model.CraftEvent) (model.HolderView, error) {
	refuse := func(err error, reason string) (model.HolderView, error) {
		e.tell(ev.Actor, uuid.Nil, "personal.craft_refused", map[string]any{"Reason": reason})
		e.record(eventlog.Entry{Event: "CRAFT", Actor: ev.Actor, Location: loc(ev.Location), Outcome: "refused", Reason: reason})
		return model.HolderView{}, fmt.Errorf("craft by %s: %s: %w", ev.Actor, reason, err)
	}

	switch {
	case !e.cfg.CraftingEnabled:
		return refuse(model.ErrDisabled, "crafting is disabled")
	case e.store.IsHolder(ev.Actor):
		return refuse(model.ErrAlreadyHolder, "already holding a relic")
	case e.cfg.MaxPerActor > 0 && e.ownedBy(ev.Actor) >= e.cfg.MaxPerActor:
		return refuse(model.ErrConflict, "personal relic limit reached")
	case e.store.Registry().Len() >= e.cfg.MaxRelics:
		return refuse(model.ErrCapacity, "every relic already exists")
	}
	if wait, ok := e.store.TryCraft(ev.Actor, e.now(), e.cfg.CraftCooldown); !ok {
		return refuse(model.ErrCooldown, fmt.Sprintf("wait %s", wait.Round(time.Second)))
	}

	view, err := e.create(ev.Actor, "craft")
	if err != nil {
		return refuse(err, "the forge failed")
	}
	e.announce(view.RelicID, "forged", map[string]any{
		"Name":  e.world.Name(ev.Actor),
		"Count": e.store.Registry().Len(),
		"Max":   e.cfg.MaxRelics,
	})
	e.record(eventlog.Entry{Event: "CREATE", Actor: ev.Actor, Relic: view.RelicID, Location: loc(ev.Location), Outcome: "crafted", TimerEnd: view.TimerEnd})
	return view, nil
}

// ownedBy counts the ground relics actor dropped. Held relics are checked separately.
func (e *Engine) ownedBy(actor uuid.UUID) int {
	n := 0
	e.store.Ground.Range(func(_ uuid.UUID, g state.Ground) bool {
		if g.OwnerID == actor {
			n++
		}
		return true
	})
	return n
}

func (e *Engine) handleBreak(ev model.BreakEvent) {
	h, ok := e.takeHolder(ev.Actor, func(h state.Holder) bool { return h.RelicID == ev.Relic })
	if !ok {
		e.log.Debug().Str("actor", ev.Actor.String()).Str("relic", ev.Relic.String()).Msg("break: not the holder")
		return
	}
	e.destroy(h.RelicID)
	e.combat.Clear(ev.Actor)
	e.world.Dispatch(model.Command{Kind: model.CmdStripRelic, Actor: ev.Actor, Relic: h.RelicID})
	e.announce(h.RelicID, "broken", map[string]any{"Name": e.world.Name(ev.Actor)})
	e.record(eventlog.Entry{Event: "BREAK", Actor: ev.Actor, Relic: h.RelicID, TimeLeft: h.TimerEnd.Sub(e.now())})
	e.markDirty()
}

// SweepStats counts what one sweep removed.
type SweepStats struct {
	Abandoned int
	Despawned int
}

// destroyedRetention bounds how long destroyed ids are remembered.
const destroyedRetention = 24 * time.Hour

// Sweep abandons holders whose timer ran out and destroys expired ground
// relics. It must run on the global scope.
func (e *Engine) Sweep() SweepStats {
	now := e.now()
	expired := func(end time.Time) bool { return !end.IsZero() && !end.After(now) }

	var stats SweepStats
	e.store.Holders.Range(func(actor uuid.UUID, h state.Holder) bool {
		if expired(h.TimerEnd) && e.abandon(actor, "hunger", func(h state.Holder) bool { return expired(h.TimerEnd) }) {
			stats.Abandoned++
		}
		return true
	})
	e.store.Ground.Range(func(relic uuid.UUID, g state.Ground) bool {
		if expired(g.TimerEnd) && e.destroyGround(relic, "timeout", func(g state.Ground) bool { return expired(g.TimerEnd) }) {
			stats.Despawned++
		}
		return true
	})
	e.destroyed.UpdateAll(func(_ uuid.UUID, at time.Time) (time.Time, bool) {
		return at, now.Sub(at) < destroyedRetention
	})
	return stats
}
