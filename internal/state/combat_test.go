package state

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecordDamageAccumulates(t *testing.T) {
	t.Parallel()
	s := New()
	victim, attacker := uuid.New(), uuid.New()

	s.RecordDamage(victim, attacker, 3, t0)
	s.RecordDamage(victim, attacker, 4.5, t0.Add(2*time.Second))

	rec, ok := s.Damage(victim, attacker)
	if !ok {
		t.Fatal("damage record missing")
	}
	if rec.Hits != 2 || rec.Total != 7.5 || !rec.FirstHit.Equal(t0) || !rec.LastHit.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("unexpected record %+v", rec)
	}
	if last, ok := s.LastDamaged(victim); !ok || !last.Equal(t0.Add(2*time.Second)) {
		t.Fatalf("LastDamaged = %v %v", last, ok)
	}
}

func TestClearCombatRemovesBothDirections(t *testing.T) {
	t.Parallel()
	s := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s.RecordDamage(a, b, 1, t0)
	s.RecordDamage(b, a, 1, t0)
	s.RecordDamage(c, a, 1, t0)
	s.RecordDeflection(a, b, t0)

	s.ClearCombat(a)

	if _, ok := s.Damage(a, b); ok {
		t.Fatal("victim records survived")
	}
	if _, ok := s.Damage(b, a); ok {
		t.Fatal("attacker records on other victims survived")
	}
	if _, ok := s.Damage(c, a); ok {
		t.Fatal("attacker records on other victims survived")
	}
	if _, ok := s.Deflection(a, b); ok {
		t.Fatal("deflection records survived")
	}
}

func TestPruneCombatWindows(t *testing.T) {
	t.Parallel()
	s := New()
	victim, old, fresh := uuid.New(), uuid.New(), uuid.New()

	s.RecordDamage(victim, old, 1, t0)
	s.RecordDamage(victim, fresh, 1, t0.Add(50*time.Second))
	s.RecordDeflection(victim, old, t0)

	now := t0.Add(70 * time.Second)
	st := s.PruneCombat(now, 60*time.Second, 600*time.Second, 1000)

	if st.Damage != 1 || st.Deflections != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if _, ok := s.Damage(victim, old); ok {
		t.Fatal("stale damage not pruned")
	}
	if _, ok := s.Damage(victim, fresh); !ok {
		t.Fatal("fresh damage pruned")
	}
	if _, ok := s.Deflection(victim, old); !ok {
		t.Fatal("deflection inside its longer window pruned")
	}
}

func TestPruneCombatCapsAttackersOldestFirst(t *testing.T) {
	t.Parallel()
	s := New()
	victim := uuid.New()
	attackers := make([]uuid.UUID, 5)
	for i := range attackers {
		attackers[i] = uuid.New()
		s.RecordDamage(victim, attackers[i], 1, t0.Add(time.Duration(i)*time.Second))
	}

	st := s.PruneCombat(t0.Add(5*time.Second), time.Minute, 10*time.Minute, 3)
	if st.Evicted != 2 || s.AttackerCount(victim) != 3 {
		t.Fatalf("evicted %d, kept %d", st.Evicted, s.AttackerCount(victim))
	}
	for _, a := range attackers[:2] {
		if _, ok := s.Damage(victim, a); ok {
			t.Fatal("oldest attacker records should be evicted first")
		}
	}
	for _, a := range attackers[2:] {
		if _, ok := s.Damage(victim, a); !ok {
			t.Fatal("newest attacker records should be kept")
		}
	}
}
