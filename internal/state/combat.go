package state

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RecordDamage adds amount dealt by attacker to victim at t.
func (s *Store) RecordDamage(victim, attacker uuid.UUID, amount float64, t time.Time) {
	s.damage.Update(victim, func(m map[uuid.UUID]DamageRecord, ok bool) (map[uuid.UUID]DamageRecord, bool) {
		if !ok {
			m = make(map[uuid.UUID]DamageRecord)
		}
		rec, seen := m[attacker]
		if !seen {
			rec.FirstHit = t
		}
		rec.Hits++
		rec.Total += amount
		rec.LastHit = t
		if rec.FirstHit.After(rec.LastHit) {
			rec.FirstHit = rec.LastHit
		}
		m[attacker] = rec
		return m, true
	})
	s.lastDamage.Store(victim, t)
}

// RecordDeflection counts one deflection by victim against attacker at t.
func (s *Store) RecordDeflection(victim, attacker uuid.UUID, t time.Time) {
	s.deflections.Update(victim, func(m map[uuid.UUID]DeflectionRecord, ok bool) (map[uuid.UUID]DeflectionRecord, bool) {
		if !ok {
			m = make(map[uuid.UUID]DeflectionRecord)
		}
		rec := m[attacker]
		rec.Count++
		rec.Last = t
		m[attacker] = rec
		return m, true
	})
}

// Damage returns what attacker has dealt to victim.
func (s *Store) Damage(victim, attacker uuid.UUID) (rec DamageRecord, ok bool) {
	s.damage.View(victim, func(m map[uuid.UUID]DamageRecord, _ bool) {
		rec, ok = m[attacker]
	})
	return rec, ok
}

// Deflection returns victim's deflections against attacker.
func (s *Store) Deflection(victim, attacker uuid.UUID) (rec DeflectionRecord, ok bool) {
	s.deflections.View(victim, func(m map[uuid.UUID]DeflectionRecord, _ bool) {
		rec, ok = m[attacker]
	})
	return rec, ok
}

// LastDamaged is when victim last took tracked damage.
func (s *Store) LastDamaged(victim uuid.UUID) (time.Time, bool) {
	return s.lastDamage.Load(victim)
}

// AttackerCount is the number of attacker records kept for victim.
func (s *Store) AttackerCount(victim uuid.UUID) int {
	n := 0
	s.damage.View(victim, func(m map[uuid.UUID]DamageRecord, _ bool) { n = len(m) })
	return n
}

// ClearCombat drops every record where actor is the victim or the attacker.
func (s *Store) ClearCombat(actor uuid.UUID) {
	s.damage.Delete(actor)
	s.deflections.Delete(actor)
	s.lastDamage.Delete(actor)
	s.damage.UpdateAll(func(_ uuid.UUID, m map[uuid.UUID]DamageRecord) (map[uuid.UUID]DamageRecord, bool) {
		delete(m, actor)
		return m, len(m) > 0
	})
	s.deflections.UpdateAll(func(_ uuid.UUID, m map[uuid.UUID]DeflectionRecord) (map[uuid.UUID]DeflectionRecord, bool) {
		delete(m, actor)
		return m, len(m) > 0
	})
}

// PruneStats reports what PruneCombat removed.
type PruneStats struct {
	Damage      int
	Deflections int
	Evicted     int
}

// PruneCombat drops damage last seen before now-damageWindow and deflections
// last seen before now-deflectionWindow, then trims each victim to maxPerVictim
// attacker records, evicting the oldest first.
func (s *Store) PruneCombat(now time.Time, damageWindow, deflectionWindow time.Duration, maxPerVictim int) PruneStats {
	var st PruneStats
	damageCutoff := now.Add(-damageWindow)
	deflectionCutoff := now.Add(-deflectionWindow)

	s.damage.UpdateAll(func(_ uuid.UUID, m map[uuid.UUID]DamageRecord) (map[uuid.UUID]DamageRecord, bool) {
		for a, r := range m {
			if r.LastHit.Before(damageCutoff) {
				delete(m, a)
				st.Damage++
			}
		}
		if maxPerVictim > 0 && len(m) > maxPerVictim {
			st.Evicted += evictOldest(m, maxPerVictim, func(r DamageRecord) time.Time { return r.FirstHit })
		}
		return m, len(m) > 0
	})
	s.deflections.UpdateAll(func(_ uuid.UUID, m map[uuid.UUID]DeflectionRecord) (map[uuid.UUID]DeflectionRecord, bool) {
		for a, r := range m {
			if r.Last.Before(deflectionCutoff) {
				delete(m, a)
				st.Deflections++
			}
		}
		if maxPerVictim > 0 && len(m) > maxPerVictim {
			st.Evicted += evictOldest(m, maxPerVictim, func(r DeflectionRecord) time.Time { return r.Last })
		}
		return m, len(m) > 0
	})
	s.lastDamage.UpdateAll(func(_ uuid.UUID, t time.Time) (time.Time, bool) {
		return t, !t.Before(damageCutoff)
	})
	return st
}

func evictOldest[R any](m map[uuid.UUID]R, keep int, age func(R) time.Time) int {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return age(m[ids[i]]).Before(age(m[ids[j]])) })
	n := len(ids) - keep
	for _, id := range ids[:n] {
		delete(m, id)
	}
	return n
}
