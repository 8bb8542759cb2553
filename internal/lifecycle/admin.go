package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// Administrative transitions. Each runs on the global scope and waits for
// the outcome.

// Grant creates a relic for actor, e.g. to refund a lost one.
func (e *Engine) Grant(ctx context.Context, actor uuid.UUID) (model.HolderView, error) {
	return call(ctx, e.sched.RunNow, func() (model.HolderView, error) {
		view, err := e.create(actor, "grant")
		if err != nil {
			return view, err
		}
		e.tell(actor, view.RelicID, "personal.refund", nil)
		e.announce(view.RelicID, "forged", map[string]any{
			"Name":  e.world.Name(actor),
			"Count": e.store.Registry().Len(),
			"Max":   e.cfg.MaxRelics,
		})
		e.record(eventlog.Entry{Event: "CREATE", Actor: actor, Relic: view.RelicID, Outcome: "granted", TimerEnd: view.TimerEnd})
		return view, nil
	})
}

// Revoke destroys actor's relic. An offline actor is stripped when they
// next join.
func (e *Engine) Revoke(ctx context.Context, actor uuid.UUID) error {
	return e.onGlobal(ctx, func() error {
		h, ok := e.takeHolder(actor, nil)
		if !ok {
			return fmt.Errorf("revoke %s: %w", actor, model.ErrNotHolder)
		}
		e.destroy(h.RelicID)
		e.combat.Clear(actor)
		e.removeItem(actor, h.RelicID)
		e.tell(actor, h.RelicID, "personal.revoked", nil)
		e.announce(h.RelicID, "divine_single", map[string]any{"Name": e.world.Name(actor)})
		e.record(eventlog.Entry{Event: "REVOKE", Actor: actor, Relic: h.RelicID, TimeLeft: h.TimerEnd.Sub(e.now())})
		e.markDirty()
		return nil
	})
}

// RevokeAll destroys every relic. Offline holders are stripped when they
// next join; the previous pending set is discarded.
func (e *Engine) RevokeAll(ctx context.Context) (int, error) {
	return call(ctx, e.sched.RunNow, func() (int, error) {
		holders, ground := e.store.Reset()
		for actor, h := range holders {
			h.StopEffects()
			e.destroyed.Store(h.RelicID, e.now())
			e.combat.Clear(actor)
			e.removeItem(actor, h.RelicID)
		}
		for relic, g := range ground {
			g.StopSequence()
			e.destroyed.Store(relic, e.now())
			e.world.Dispatch(model.Command{Kind: model.CmdPurgeRelic, Relic: relic})
		}
		n := len(holders) + len(ground)
		if text := e.narr.Render(uuid.Nil, "announce.divine_all", nil); text != "" {
			e.world.Dispatch(model.Command{Kind: model.CmdAnnounce, Text: text})
		}
		e.record(eventlog.Entry{Event: "REVOKE_ALL", Context: map[string]any{
			"holders": len(holders),
			"ground":  len(ground),
		}})
		e.log.Info().Int("holders", len(holders)).Int("ground", len(ground)).Msg("all relics revoked")
		e.markDirty()
		return n, nil
	})
}

// removeItem strips relic from an online actor or queues the strip for
// their next join.
func (e *Engine) removeItem(actor, relic uuid.UUID) {
	if e.world.Online(actor) {
		e.world.Dispatch(model.Command{Kind: model.CmdStripRelic, Actor: actor, Relic: relic})
		return
	}
	e.store.Pending.Store(actor, struct{}{})
}

// Transfer moves from's relic to to under a new id, keeping the timer. The
// receiver must be online and not already a holder.
func (e *Engine) Transfer(ctx context.Context, from, to uuid.UUID) (model.HolderView, error) {
	if from == to {
		return model.HolderView{}, fmt.Errorf("transfer to self: %w", model.ErrValidation)
	}
	return call(ctx, e.sched.RunNow, func() (model.HolderView, error) {
		if !e.world.Online(to) {
			return model.HolderView{}, fmt.Errorf("transfer to %s: receiver offline: %w", to, model.ErrValidation)
		}
		if e.store.IsHolder(to) {
			return model.HolderView{}, fmt.Errorf("transfer to %s: %w", to, model.ErrAlreadyHolder)
		}
		old, ok := e.takeHolder(from, nil)
		if !ok {
			return model.HolderView{}, fmt.Errorf("transfer from %s: %w", from, model.ErrNotHolder)
		}

		relic := uuid.New()
		if err := e.store.Registry().Swap(old.RelicID, relic); err != nil {
			e.putBack(from, old)
			return model.HolderView{}, fmt.Errorf("transfer from %s: %w", from, err)
		}
		now := e.now()
		h := state.Holder{
			RelicID:      relic,
			TimerEnd:     old.TimerEnd,
			LastChance:   old.LastChance,
			SessionStart: now,
			Generation:   e.store.NextGeneration(),
		}
		if !e.store.Holders.PutIfAbsent(to, h) {
			_ = e.store.Registry().Swap(relic, old.RelicID)
			e.putBack(from, old)
			return model.HolderView{}, fmt.Errorf("transfer to %s: %w", to, model.ErrAlreadyHolder)
		}
		e.destroyed.Store(old.RelicID, now)
		e.store.Pending.Delete(to)
		e.combat.Clear(from)

		e.removeItem(from, old.RelicID)
		e.world.Dispatch(model.Command{Kind: model.CmdGiveRelic, Actor: to, Relic: relic})
		e.startEffects(to)
		e.tell(from, old.RelicID, "personal.transfer_out", map[string]any{"To": e.world.Name(to)})
		e.tell(to, relic, "personal.transfer_in", map[string]any{"From": e.world.Name(from)})
		e.record(eventlog.Entry{
			Event:    "TRANSFER",
			Actor:    to,
			Relic:    relic,
			TimerEnd: h.TimerEnd,
			Context: map[string]any{
				"from":      from.String(),
				"old_relic": old.RelicID.String(),
			},
		})
		e.markDirty()

		view := h.View(to, now)
		view.Online = true
		return view, nil
	})
}

// putBack restores a record taken by a transfer that could not complete.
func (e *Engine) putBack(actor uuid.UUID, h state.Holder) {
	h.AuraTask, h.HeartbeatTask = nil, nil
	if e.store.Holders.PutIfAbsent(actor, h) && e.world.Online(actor) {
		e.startEffects(actor)
	}
}

// AdjustTimer adds to, removes from or resets actor's hunger timer. Add and
// remove take a positive number of seconds.
func (e *Engine) AdjustTimer(ctx context.Context, actor uuid.UUID, op model.TimerOp, seconds int64) (model.HolderView, error) {
	switch op {
	case model.TimerAdd, model.TimerRemove:
		if seconds <= 0 {
			return model.HolderView{}, fmt.Errorf("timer %s needs positive seconds: %w", op, model.ErrValidation)
		}
	case model.TimerReset:
	default:
		return model.HolderView{}, fmt.Errorf("unknown timer op %q: %w", op, model.ErrValidation)
	}

	return call(ctx, e.sched.RunNow, func() (model.HolderView, error) {
		now := e.now()
		delta := time.Duration(seconds) * time.Second
		var (
			out   state.Holder
			found bool
		)
		e.store.Holders.Update(actor, func(h state.Holder, ok bool) (state.Holder, bool) {
			if !ok {
				return h, false
			}
			switch op {
			case model.TimerAdd:
				h.TimerEnd = h.TimerEnd.Add(delta)
			case model.TimerRemove:
				h.TimerEnd = h.TimerEnd.Add(-delta)
			case model.TimerReset:
				h.TimerEnd = now.Add(e.cfg.Hunger)
			}
			if h.TimerEnd.Sub(now) > e.cfg.LastChance {
				h.LastChance = false
			}
			out, found = h, true
			return h, true
		})
		if !found {
			return model.HolderView{}, fmt.Errorf("timer %s for %s: %w", op, actor, model.ErrNotHolder)
		}

		switch op {
		case model.TimerAdd:
			e.tell(actor, out.RelicID, "personal.timer_added", map[string]any{"Seconds": seconds})
		case model.TimerRemove:
			e.tell(actor, out.RelicID, "personal.timer_removed", map[string]any{"Seconds": seconds})
		case model.TimerReset:
			e.tell(actor, out.RelicID, "personal.timer_reset", nil)
		}
		e.record(eventlog.Entry{
			Event:    "TIMER_ADJUST",
			Actor:    actor,
			Relic:    out.RelicID,
			Outcome:  string(op),
			TimerEnd: out.TimerEnd,
			TimeLeft: out.TimerEnd.Sub(now),
			Context:  map[string]any{"seconds": seconds},
		})
		e.markDirty()

		view := out.View(actor, now)
		view.Online = e.world.Online(actor)
		return view, nil
	})
}

// DespawnGround destroys a ground relic on request.
func (e *Engine) DespawnGround(ctx context.Context, relic uuid.UUID) error {
	return e.onGlobal(ctx, func() error {
		if !e.destroyGround(relic, "admin", nil) {
			return fmt.Errorf("despawn %s: %w", relic, model.ErrNotFound)
		}
		return nil
	})
}
