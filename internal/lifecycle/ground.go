package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/eventlog"
	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
	"github.com/mycelian/relic-service/internal/state"
)

// startSequence gives a ground relic a fresh despawn task (when it has a
// timer) and location broadcast, cancelling whatever it had.
func (e *Engine) startSequence(relic uuid.UUID) {
	g, ok := e.store.Ground.Load(relic)
	if !ok {
		return
	}

	var despawn *scheduler.Task
	if !g.TimerEnd.IsZero() {
		deadline := g.TimerEnd
		despawn = e.sched.RunDelayed(deadline.Sub(e.now()), func() {
			e.destroyGround(relic, "timeout", func(g state.Ground) bool {
				return g.TimerEnd.Equal(deadline)
			})
		})
	}
	broadcast, err := e.sched.RunRepeating(e.cfg.GroundBroadcast, e.cfg.GroundBroadcast, func() {
		e.broadcastGround(relic)
	})
	if err != nil {
		e.log.Error().Err(err).Str("relic", relic.String()).Msg("start ground broadcast")
	}

	attached := false
	e.store.Ground.Update(relic, func(g state.Ground, ok bool) (state.Ground, bool) {
		if !ok {
			return g, false
		}
		g.StopSequence()
		g.DespawnTask, g.BroadcastTask = despawn, broadcast
		attached = true
		return g, true
	})
	if !attached {
		despawn.Cancel()
		broadcast.Cancel()
	}
}

func (e *Engine) broadcastGround(relic uuid.UUID) {
	g, ok := e.store.Ground.Load(relic)
	if !ok {
		return
	}
	e.announce(relic, "location", map[string]any{"Location": g.Location.String()})
}

// destroyGround removes a ground relic for good. It must run on the global
// scope. match, when set, must accept the record for it to be removed.
func (e *Engine) destroyGround(relic uuid.UUID, reason string, match func(state.Ground) bool) bool {
	g, ok := e.takeGround(relic, match)
	if !ok {
		e.log.Debug().Str("relic", relic.String()).Str("reason", reason).Msg("despawn: no ground record")
		return false
	}
	e.destroy(relic)
	e.world.Dispatch(model.Command{Kind: model.CmdPurgeRelic, Relic: relic})
	e.announce(relic, "relic_lost", map[string]any{"Location": g.Location.String()})
	e.record(eventlog.Entry{
		Event:    "DESPAWN",
		Actor:    g.OwnerID,
		Relic:    relic,
		Location: loc(g.Location),
		Reason:   reason,
	})
	e.log.Info().Str("relic", relic.String()).Str("reason", reason).Msg("ground relic destroyed")
	e.markDirty()
	return true
}

// placeGround puts relic on the ground at l, replacing any record it had.
func (e *Engine) placeGround(relic uuid.UUID, l model.Location, timerEnd time.Time, owner uuid.UUID) {
	e.store.Ground.Update(relic, func(g state.Ground, ok bool) (state.Ground, bool) {
		if ok {
			g.StopSequence()
		}
		return state.Ground{Location: l, TimerEnd: timerEnd, OwnerID: owner}, true
	})
	e.world.Dispatch(model.Command{Kind: model.CmdDropRelic, Relic: relic, Location: loc(l)})
	e.startSequence(relic)
}

// Resume restarts the despawn sequence of loaded ground relics. Relics whose
// timer passed while the service was down are destroyed on the next run of
// the global scope.
func (e *Engine) Resume(relics []uuid.UUID) {
	for _, relic := range relics {
		e.sched.RunNow(func() { e.startSequence(relic) })
	}
}
