package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
)

// World events. Fire-and-forget events return the task they were queued as;
// Pickup and Craft wait for the outcome.

func (e *Engine) Damage(ev model.DamageEvent) *scheduler.Task {
	return e.sched.RunAtActor(ev.Victim, func() { e.combat.RecordDamage(ev) })
}

func (e *Engine) Deflection(ev model.DeflectionEvent) *scheduler.Task {
	return e.sched.RunAtActor(ev.Victim, func() { e.combat.RecordDeflection(ev) })
}

func (e *Engine) Death(ev model.DeathEvent) *scheduler.Task {
	return e.sched.RunAtActor(ev.Victim, func() { e.handleDeath(ev) })
}

// Pickup moves a ground relic to ev.Actor. It fails with ErrAlreadyHolder when
// the actor holds a relic and ErrNotFound when the relic is not on the ground.
// The work runs in the region of the ground record, so racing pickups of one
// relic share a worker whatever location each client reports.
func (e *Engine) Pickup(ctx context.Context, ev model.PickupEvent) (model.HolderView, error) {
	if ev.Actor == uuid.Nil || ev.Relic == uuid.Nil {
		return model.HolderView{}, fmt.Errorf("pickup needs actor and relic: %w", model.ErrValidation)
	}
	at := ev.Location
	if g, ok := e.store.Ground.Load(ev.Relic); ok {
		at = g.Location
	}
	return call(ctx, func(fn func()) *scheduler.Task {
		return e.sched.RunAtLocation(at, fn)
	}, func() (model.HolderView, error) {
		return e.pickup(ev)
	})
}

// Join records presence, then restarts effects and applies any pending removal.
func (e *Engine) Join(ev model.JoinEvent) *scheduler.Task {
	e.world.Join(ev.Actor, ev.Name, ev.Location)
	return e.sched.RunAtActor(ev.Actor, func() { e.handleJoin(ev.Actor) })
}

// Quit stops effects and drops combat data. Presence is removed after the
// work is routed so partitioned routing still finds the actor.
func (e *Engine) Quit(ev model.QuitEvent) *scheduler.Task {
	t := e.sched.RunAtActor(ev.Actor, func() {
		e.stopEffects(ev.Actor)
		e.combat.Clear(ev.Actor)
	})
	e.world.Quit(ev.Actor)
	return t
}

func (e *Engine) Move(ev model.MoveEvent) {
	e.world.Move(ev.Actor, ev.Location)
}

func (e *Engine) Void(ev model.VoidEvent) *scheduler.Task {
	if ev.Relic == uuid.Nil {
		e.log.Debug().Str("location", ev.Location.String()).Msg("void: untagged item ignored")
		return nil
	}
	return e.sched.RunAtLocation(ev.Location, func() { e.handleVoid(ev) })
}

// Despawn handles a physical relic item vanishing from the world.
func (e *Engine) Despawn(ev model.DespawnEvent) *scheduler.Task {
	return e.sched.RunNow(func() { e.destroyGround(ev.Relic, "item_despawned", nil) })
}

// Craft mints a relic for the crafter.
func (e *Engine) Craft(ctx context.Context, ev model.CraftEvent) (model.HolderView, error) {
	if ev.Actor == uuid.Nil {
		return model.HolderView{}, fmt.Errorf("craft needs an actor: %w", model.ErrValidation)
	}
	return call(ctx, func(fn func()) *scheduler.Task {
		return e.sched.RunAtActor(ev.Actor, fn)
	}, func() (model.HolderView, error) {
		return e.craft(ev)
	})
}

func (e *Engine) Break(ev model.BreakEvent) *scheduler.Task {
	return e.sched.RunAtActor(ev.Actor, func() { e.handleBreak(ev) })
}
