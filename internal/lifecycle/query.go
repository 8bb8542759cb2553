package lifecycle

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/state"
)

// Read-only queries. They return copies and may run on any goroutine.

// Holders lists every holder, soonest timer first.
func (e *Engine) Holders() []model.HolderView {
	now := e.now()
	out := make([]model.HolderView, 0, e.store.Holders.Len())
	e.store.Holders.Range(func(actor uuid.UUID, h state.Holder) bool {
		v := h.View(actor, now)
		v.Online = e.world.Online(actor)
		out = append(out, v)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimerEnd.Equal(out[j].TimerEnd) {
			return out[i].ActorID.String() < out[j].ActorID.String()
		}
		return out[i].TimerEnd.Before(out[j].TimerEnd)
	})
	return out
}

func (e *Engine) Ground() []model.GroundView {
	now := e.now()
	out := make([]model.GroundView, 0, e.store.Ground.Len())
	e.store.Ground.Range(func(relic uuid.UUID, g state.Ground) bool {
		out = append(out, g.View(relic, now))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RelicID.String() < out[j].RelicID.String() })
	return out
}

// Counts reports totals; nothing is craftable while crafting is disabled.
func (e *Engine) Counts() model.Counts {
	c := e.store.Counts(e.cfg.MaxRelics)
	if !e.cfg.CraftingEnabled {
		c.Craftable = 0
	}
	return c
}

func (e *Engine) HolderByActor(actor uuid.UUID) (model.HolderView, error) {
	h, ok := e.store.Holders.Load(actor)
	if !ok {
		return model.HolderView{}, fmt.Errorf("holder %s: %w", actor, model.ErrNotFound)
	}
	v := h.View(actor, e.now())
	v.Online = e.world.Online(actor)
	return v, nil
}

// Relic looks up an id. Recently destroyed ids report StateDestroyed.
func (e *Engine) Relic(relic uuid.UUID) (model.RelicView, error) {
	now := e.now()
	if actor, h, ok := e.store.HolderOf(relic); ok {
		v := h.View(actor, now)
		v.Online = e.world.Online(actor)
		return model.RelicView{RelicID: relic, State: model.StateHeld, Holder: &v}, nil
	}
	if g, ok := e.store.Ground.Load(relic); ok {
		v := g.View(relic, now)
		return model.RelicView{RelicID: relic, State: model.StateGround, Ground: &v}, nil
	}
	if _, ok := e.destroyed.Load(relic); ok {
		return model.RelicView{RelicID: relic, State: model.StateDestroyed}, nil
	}
	return model.RelicView{}, fmt.Errorf("relic %s: %w", relic, model.ErrNotFound)
}
