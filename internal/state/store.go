// Package state is the shared, in-memory source of truth for relic holders,
// ground relics, pending removals and combat records.
//
// The store performs no business logic. Each map is safe for concurrent use
// with per-entry atomicity only; callers that need several entries to change
// together serialize through the global scheduling scope.
package state

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
)

type Store struct {
	Holders *Map[uuid.UUID, Holder]
	Ground  *Map[uuid.UUID, Ground]
	Pending *Map[uuid.UUID, struct{}]

	// victim -> attacker -> record
	damage      *Map[uuid.UUID, map[uuid.UUID]DamageRecord]
	deflections *Map[uuid.UUID, map[uuid.UUID]DeflectionRecord]
	lastDamage  *Map[uuid.UUID, time.Time]

	craftCooldowns    *Map[uuid.UUID, time.Time]
	announcementTimes *Map[string, time.Time]

	registry   *Registry
	generation atomic.Uint64
}

func New() *Store {
	return &Store{
		Holders:           NewMap[uuid.UUID, Holder](0, HashUUID),
		Ground:            NewMap[uuid.UUID, Ground](0, HashUUID),
		Pending:           NewMap[uuid.UUID, struct{}](0, HashUUID),
		damage:            NewMap[uuid.UUID, map[uuid.UUID]DamageRecord](0, HashUUID),
		deflections:       NewMap[uuid.UUID, map[uuid.UUID]DeflectionRecord](0, HashUUID),
		lastDamage:        NewMap[uuid.UUID, time.Time](0, HashUUID),
		craftCooldowns:    NewMap[uuid.UUID, time.Time](0, HashUUID),
		announcementTimes: NewMap[string, time.Time](0, HashString),
		registry:          newRegistry(),
	}
}

func (s *Store) Registry() *Registry { return s.registry }

// NextGeneration returns a store-wide unique holder generation.
func (s *Store) NextGeneration() uint64 { return s.generation.Add(1) }

// HolderOf finds the actor holding relic.
func (s *Store) HolderOf(relic uuid.UUID) (uuid.UUID, Holder, bool) {
	var (
		actor uuid.UUID
		rec   Holder
		found bool
	)
	s.Holders.Range(func(a uuid.UUID, h Holder) bool {
		if h.RelicID == relic {
			actor, rec, found = a, h, true
			return false
		}
		return true
	})
	return actor, rec, found
}

func (s *Store) IsHolder(actor uuid.UUID) bool {
	_, ok := s.Holders.Load(actor)
	return ok
}

// Counts reports relic totals against max. Craftable is how many more may be created.
func (s *Store) Counts(max int) model.Counts {
	total := s.registry.Len()
	craftable := max - total
	if craftable < 0 {
		craftable = 0
	}
	return model.Counts{
		Total:     total,
		Held:      s.Holders.Len(),
		Ground:    s.Ground.Len(),
		Max:       max,
		Craftable: craftable,
	}
}

// TryCraft records a craft by actor at now unless the previous one was less
// than cooldown ago; it returns the wait left when refused.
func (s *Store) TryCraft(actor uuid.UUID, now time.Time, cooldown time.Duration) (time.Duration, bool) {
	var wait time.Duration
	s.craftCooldowns.Update(actor, func(last time.Time, ok bool) (time.Time, bool) {
		if ok && now.Sub(last) < cooldown {
			wait = cooldown - now.Sub(last)
			return last, true
		}
		return now, true
	})
	return wait, wait == 0
}

// TryAnnounce reports whether an announcement for key may go out at now, and
// if so records it.
func (s *Store) TryAnnounce(key string, now time.Time, cooldown time.Duration) bool {
	allowed := false
	s.announcementTimes.Update(key, func(last time.Time, ok bool) (time.Time, bool) {
		if ok && now.Sub(last) < cooldown {
			return last, true
		}
		allowed = true
		return now, true
	})
	return allowed
}

// Snapshot copies the persistent parts of the store, sorted for stable output.
func (s *Store) Snapshot(now time.Time) model.Snapshot {
	var snap model.Snapshot
	s.Holders.Range(func(actor uuid.UUID, h Holder) bool {
		v := h.View(actor, now)
		// The running session is restored with SessionStart; persist the stored total only.
		v.TotalHoldMinutes = h.TotalHoldMinutes
		snap.Holders = append(snap.Holders, v)
		return true
	})
	s.Ground.Range(func(relic uuid.UUID, g Ground) bool {
		snap.Ground = append(snap.Ground, g.View(relic, now))
		return true
	})
	snap.PendingRemoval = s.Pending.Keys()

	sort.Slice(snap.Holders, func(i, j int) bool {
		return snap.Holders[i].ActorID.String() < snap.Holders[j].ActorID.String()
	})
	sort.Slice(snap.Ground, func(i, j int) bool {
		return snap.Ground[i].RelicID.String() < snap.Ground[j].RelicID.String()
	})
	sort.Slice(snap.PendingRemoval, func(i, j int) bool {
		return snap.PendingRemoval[i].String() < snap.PendingRemoval[j].String()
	})
	return snap
}

// Restore loads snap into an empty store. Holder records get fresh
// generations and no tasks. A relic id seen twice keeps its first record
// (holders are applied before ground); the duplicates are returned.
func (s *Store) Restore(snap model.Snapshot) []uuid.UUID {
	var dupes []uuid.UUID
	for _, h := range snap.Holders {
		if !s.registry.restore(h.RelicID) {
			dupes = append(dupes, h.RelicID)
			continue
		}
		if !s.Holders.PutIfAbsent(h.ActorID, Holder{
			RelicID:          h.RelicID,
			TimerEnd:         h.TimerEnd,
			LastChance:       h.LastChance,
			LastWhisper:      h.LastWhisper,
			LastKill:         h.LastKill,
			TotalHoldMinutes: h.TotalHoldMinutes,
			SessionStart:     h.SessionStart,
			Generation:       s.NextGeneration(),
		}) {
			s.registry.Release(h.RelicID)
			dupes = append(dupes, h.RelicID)
		}
	}
	for _, g := range snap.Ground {
		if !s.registry.restore(g.RelicID) {
			dupes = append(dupes, g.RelicID)
			continue
		}
		s.Ground.Store(g.RelicID, Ground{Location: g.Location, TimerEnd: g.TimerEnd, OwnerID: g.OwnerID})
	}
	for _, actor := range snap.PendingRemoval {
		s.Pending.Store(actor, struct{}{})
	}
	return dupes
}

// Reset empties every map. Tasks on removed records are the caller's to
// cancel; the removed records are returned for that purpose.
func (s *Store) Reset() (map[uuid.UUID]Holder, map[uuid.UUID]Ground) {
	holders := s.Holders.Drain()
	ground := s.Ground.Drain()
	s.Pending.Drain()
	s.registry.clear()
	return holders, ground
}
