package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
)

// Registry is the set of relic ids currently in existence, held or on the
// ground. Creation reserves an id here before any record is written, so the
// relic count is checked and incremented in one step.
type Registry struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func newRegistry() *Registry {
	return &Registry{ids: make(map[uuid.UUID]struct{})}
}

// Reserve adds id unless max relics already exist or id is taken.
func (r *Registry) Reserve(id uuid.UUID, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return fmt.Errorf("relic %s: %w", id, model.ErrConflict)
	}
	if len(r.ids) >= max {
		return fmt.Errorf("%d of %d relics exist: %w", len(r.ids), max, model.ErrCapacity)
	}
	r.ids[id] = struct{}{}
	return nil
}

// Release removes id and reports whether it was present.
func (r *Registry) Release(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}

// Swap replaces from with to in one step, leaving the count unchanged.
func (r *Registry) Swap(from, to uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[from]; !ok {
		return fmt.Errorf("relic %s: %w", from, model.ErrNotFound)
	}
	if _, ok := r.ids[to]; ok {
		return fmt.Errorf("relic %s: %w", to, model.ErrConflict)
	}
	delete(r.ids, from)
	r.ids[to] = struct{}{}
	return nil
}

func (r *Registry) Contains(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *Registry) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	return out
}

func (r *Registry) clear() {
	r.mu.Lock()
	r.ids = make(map[uuid.UUID]struct{})
	r.mu.Unlock()
}

// restore adds id without a capacity check; loaded data is trusted.
func (r *Registry) restore(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}
