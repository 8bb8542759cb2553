package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// Aura intensities by remaining fraction of the hunger interval.
const (
	AuraCalm     = "calm"
	AuraRestless = "restless"
	AuraStarving = "starving"
)

// startEffects gives actor's record fresh aura and heartbeat tasks,
// cancelling any it already had. The pulses are timed on the global scope
// and emitted from the actor's scope.
func (e *Engine) startEffects(actor uuid.UUID) {
	aura, err := e.sched.RunRepeating(0, e.cfg.AuraPeriod, func() {
		e.sched.RunAtActor(actor, func() { e.pulseAura(actor) })
	})
	if err != nil {
		e.log.Error().Err(err).Str("actor", actor.String()).Msg("start aura")
		return
	}
	heartbeat, err := e.sched.RunRepeating(0, e.cfg.HeartbeatPeriod, func() {
		e.sched.RunAtActor(actor, func() { e.pulseHeartbeat(actor) })
	})
	if err != nil {
		aura.Cancel()
		e.log.Error().Err(err).Str("actor", actor.String()).Msg("start heartbeat")
		return
	}

	attached := false
	e.store.Holders.Update(actor, func(h state.Holder, ok bool) (state.Holder, bool) {
		if !ok {
			return h, false
		}
		h.StopEffects()
		h.AuraTask, h.HeartbeatTask = aura, heartbeat
		attached = true
		return h, true
	})
	if !attached {
		aura.Cancel()
		heartbeat.Cancel()
	}
}

// stopEffects cancels actor's effect tasks and keeps the record.
func (e *Engine) stopEffects(actor uuid.UUID) {
	e.store.Holders.Update(actor, func(h state.Holder, ok bool) (state.Holder, bool) {
		if ok {
			h.StopEffects()
		}
		return h, ok
	})
}

func (e *Engine) pulseAura(actor uuid.UUID) {
	h, ok := e.store.Holders.Load(actor)
	if !ok || !e.world.Online(actor) {
		return
	}
	e.world.Dispatch(model.Command{
		Kind:      model.CmdAura,
		Actor:     actor,
		Relic:     h.RelicID,
		Intensity: auraIntensity(h.TimerEnd.Sub(e.now()), e.cfg.Hunger),
	})
}

func (e *Engine) pulseHeartbeat(actor uuid.UUID) {
	h, ok := e.store.Holders.Load(actor)
	if !ok || !e.world.Online(actor) {
		return
	}
	left := h.TimerEnd.Sub(e.now())
	if left <= 0 || left >= e.cfg.HeartbeatThreshold {
		return
	}
	e.world.Dispatch(model.Command{
		Kind:  model.CmdHeartbeat,
		Actor: actor,
		Relic: h.RelicID,
		Pitch: heartbeatPitch(left, e.cfg.HeartbeatThreshold, e.cfg.PitchMin, e.cfg.PitchMax),
	})
}

func auraIntensity(left, hunger time.Duration) string {
	frac := float64(left) / float64(hunger)
	switch {
	case frac > 0.5:
		return AuraCalm
	case frac > 0.1:
		return AuraRestless
	default:
		return AuraStarving
	}
}

// heartbeatPitch rises linearly from lo at the threshold to hi at zero.
func heartbeatPitch(left, threshold time.Duration, lo, hi float64) float64 {
	frac := float64(left) / float64(threshold)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return hi - frac*(hi-lo)
}
