// Package persistencetest holds the compliance suite every persistence
// backend must pass.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/persistence"
)

// Run exercises a backend returned fresh and empty by makeBackend.
func Run(t *testing.T, makeBackend func(t *testing.T) persistence.Backend) {
	t.Helper()

	b := makeBackend(t)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	empty, err := b.Empty(ctx)
	if err != nil || !empty {
		t.Fatalf("Empty on fresh backend: empty=%v err=%v", empty, err)
	}
	if snap, err := b.Load(ctx); err != nil || !snap.Empty() {
		t.Fatalf("Load on fresh backend: snap=%+v err=%v", snap, err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	full := model.Snapshot{
		Holders: []model.HolderView{
			{
				ActorID:          uuid.New(),
				RelicID:          uuid.New(),
				TimerEnd:         base.Add(24 * time.Hour),
				LastChance:       true,
				LastWhisper:      base.Add(-time.Minute),
				LastKill:         uuid.New(),
				TotalHoldMinutes: 95,
				SessionStart:     base.Add(-time.Hour),
			},
			{ActorID: uuid.New(), RelicID: uuid.New(), TimerEnd: base.Add(time.Hour)},
		},
		Ground: []model.GroundView{
			{
				RelicID:  uuid.New(),
				Location: model.Location{World: "overworld", X: 10.5, Y: 64, Z: -3},
				TimerEnd: base.Add(5 * time.Minute),
				OwnerID:  uuid.New(),
			},
			{RelicID: uuid.New(), Location: model.Location{World: "nether", X: 1, Y: 2, Z: 3}},
		},
		PendingRemoval: []uuid.UUID{uuid.New()},
	}

	if err := b.Save(ctx, full); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if empty, err := b.Empty(ctx); err != nil || empty {
		t.Fatalf("Empty after Save: empty=%v err=%v", empty, err)
	}
	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	requireSameSnapshot(t, full, got)

	// Save replaces, it does not merge.
	smaller := model.Snapshot{Holders: full.Holders[1:]}
	if err := b.Save(ctx, smaller); err != nil {
		t.Fatalf("Save smaller: %v", err)
	}
	got, err = b.Load(ctx)
	if err != nil {
		t.Fatalf("Load smaller: %v", err)
	}
	requireSameSnapshot(t, smaller, got)

	if err := b.Save(ctx, model.Snapshot{}); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	if empty, err := b.Empty(ctx); err != nil || !empty {
		t.Fatalf("Empty after clearing: empty=%v err=%v", empty, err)
	}
}

func requireSameSnapshot(t *testing.T, want, got model.Snapshot) {
	t.Helper()
	if len(got.Holders) != len(want.Holders) || len(got.Ground) != len(want.Ground) || len(got.PendingRemoval) != len(want.PendingRemoval) {
		t.Fatalf("snapshot sizes: got %d/%d/%d want %d/%d/%d",
			len(got.Holders), len(got.Ground), len(got.PendingRemoval),
			len(want.Holders), len(want.Ground), len(want.PendingRemoval))
	}

	holders := make(map[uuid.UUID]model.HolderView, len(got.Holders))
	for _, h := range got.Holders {
		holders[h.ActorID] = h
	}
	for _, w := range want.Holders {
		h, ok := holders[w.ActorID]
		if !ok {
			t.Fatalf("holder %s missing", w.ActorID)
		}
		if h.RelicID != w.RelicID || h.LastChance != w.LastChance || h.LastKill != w.LastKill ||
			h.TotalHoldMinutes != w.TotalHoldMinutes || !h.TimerEnd.Equal(w.TimerEnd) ||
			!h.LastWhisper.Equal(w.LastWhisper) || !h.SessionStart.Equal(w.SessionStart) {
			t.Fatalf("holder %s:\n got %+v\nwant %+v", w.ActorID, h, w)
		}
	}

	ground := make(map[uuid.UUID]model.GroundView, len(got.Ground))
	for _, g := range got.Ground {
		ground[g.RelicID] = g
	}
	for _, w := range want.Ground {
		g, ok := ground[w.RelicID]
		if !ok {
			t.Fatalf("ground relic %s missing", w.RelicID)
		}
		if g.Location != w.Location || g.OwnerID != w.OwnerID || !g.TimerEnd.Equal(w.TimerEnd) {
			t.Fatalf("ground relic %s:\n got %+v\nwant %+v", w.RelicID, g, w)
		}
	}

	pending := make(map[uuid.UUID]bool, len(got.PendingRemoval))
	for _, a := range got.PendingRemoval {
		pending[a] = true
	}
	for _, a := range want.PendingRemoval {
		if !pending[a] {
			t.Fatalf("pending removal %s missing", a)
		}
	}
}
