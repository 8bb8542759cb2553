package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
)

// Holder is the mutable record of an actor holding a relic. Records are
// stored by value; change them through Store.Holders.Update.
type Holder struct {
	RelicID          uuid.UUID
	TimerEnd         time.Time
	LastChance       bool
	LastWhisper      time.Time
	LastKill         uuid.UUID
	TotalHoldMinutes int64
	SessionStart     time.Time
	// Generation changes every time the actor gains a record, so a deferred
	// cleanup can tell its record apart from a newer one.
	Generation uint64

	AuraTask      *scheduler.Task
	HeartbeatTask *scheduler.Task
}

// StopEffects cancels and clears both effect handles.
func (h *Holder) StopEffects() {
	h.AuraTask.Cancel()
	h.HeartbeatTask.Cancel()
	h.AuraTask = nil
	h.HeartbeatTask = nil
}

// HoldMinutes is the stored total plus the running session.
func (h Holder) HoldMinutes(now time.Time) int64 {
	total := h.TotalHoldMinutes
	if !h.SessionStart.IsZero() && now.After(h.SessionStart) {
		total += int64(now.Sub(h.SessionStart) / time.Minute)
	}
	return total
}

func (h Holder) View(actor uuid.UUID, now time.Time) model.HolderView {
	return model.HolderView{
		ActorID:          actor,
		RelicID:          h.RelicID,
		TimerEnd:         h.TimerEnd,
		RemainingSeconds: model.RemainingSeconds(h.TimerEnd, now),
		LastChance:       h.LastChance,
		LastWhisper:      h.LastWhisper,
		LastKill:         h.LastKill,
		TotalHoldMinutes: h.HoldMinutes(now),
		SessionStart:     h.SessionStart,
		Generation:       h.Generation,
	}
}

// Ground is the mutable record of a relic resting in the world.
type Ground struct {
	Location model.Location
	TimerEnd time.Time
	OwnerID  uuid.UUID

	DespawnTask   *scheduler.Task
	BroadcastTask *scheduler.Task
}

// StopSequence cancels and clears the despawn and broadcast handles.
func (g *Ground) StopSequence() {
	g.DespawnTask.Cancel()
	g.BroadcastTask.Cancel()
	g.DespawnTask = nil
	g.BroadcastTask = nil
}

func (g Ground) View(relic uuid.UUID, now time.Time) model.GroundView {
	return model.GroundView{
		RelicID:          relic,
		Location:         g.Location,
		TimerEnd:         g.TimerEnd,
		RemainingSeconds: model.RemainingSeconds(g.TimerEnd, now),
		OwnerID:          g.OwnerID,
	}
}

// DamageRecord accumulates hits from one attacker on one victim.
type DamageRecord struct {
	Hits     int
	Total    float64
	FirstHit time.Time
	LastHit  time.Time
}

// DeflectionRecord counts special-defense triggers a victim had against one attacker.
type DeflectionRecord struct {
	Count int
	Last  time.Time
}
