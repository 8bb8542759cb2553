package state

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const defaultShards = 16

// Map is a concurrent map split into independently locked shards. Every
// method is atomic for the entry it touches; nothing is atomic across entries.
type Map[K comparable, V any] struct {
	shards []*mapShard[K, V]
	hash   func(K) uint32
}

type mapShard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewMap returns a map with n shards; n <= 0 selects the default.
func NewMap[K comparable, V any](n int, hash func(K) uint32) *Map[K, V] {
	if n <= 0 {
		n = defaultShards
	}
	m := &Map[K, V]{shards: make([]*mapShard[K, V], n), hash: hash}
	for i := range m.shards {
		m.shards[i] = &mapShard[K, V]{m: make(map[K]V)}
	}
	return m
}

// HashUUID spreads random (v4) ids by their trailing bytes.
func HashUUID(id uuid.UUID) uint32 { return binary.BigEndian.Uint32(id[12:]) }

// HashString is FNV-1a.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func (m *Map[K, V]) shard(k K) *mapShard[K, V] {
	return m.shards[m.hash(k)%uint32(len(m.shards))]
}

func (m *Map[K, V]) Load(k K) (V, bool) {
	s := m.shard(k)
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	return v, ok
}

func (m *Map[K, V]) Store(k K, v V) {
	s := m.shard(k)
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

// PutIfAbsent stores v unless k is present, and reports whether it stored.
func (m *Map[K, V]) PutIfAbsent(k K, v V) bool {
	s := m.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = v
	return true
}

// LoadAndDelete removes k and returns the value it held.
func (m *Map[K, V]) LoadAndDelete(k K) (V, bool) {
	s := m.shard(k)
	s.mu.Lock()
	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return v, ok
}

func (m *Map[K, V]) Delete(k K) {
	s := m.shard(k)
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// DeleteIf removes k only when match approves the current value.
func (m *Map[K, V]) DeleteIf(k K, match func(V) bool) (V, bool) {
	s := m.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	if !ok || !match(v) {
		var zero V
		return zero, false
	}
	delete(s.m, k)
	return v, true
}

// Update replaces the entry for k with the value fn returns, or deletes it
// when keep is false. fn runs under the shard lock and must not call back
// into the map.
func (m *Map[K, V]) Update(k K, fn func(v V, ok bool) (next V, keep bool)) V {
	s := m.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[k]
	next, keep := fn(cur, ok)
	if keep {
		s.m[k] = next
	} else if ok {
		delete(s.m, k)
	}
	return next
}

// View runs fn against the entry for k under the shard read lock. Use it for
// values holding references (maps, slices) that must not escape the lock.
func (m *Map[K, V]) View(k K, fn func(v V, ok bool)) {
	s := m.shard(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	fn(v, ok)
}

// Range calls fn for every entry until it returns false. Each shard is
// copied under its lock and fn runs unlocked, so fn may write to the map;
// entries in other shards may change while iteration is in progress.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	type kv struct {
		k K
		v V
	}
	for _, s := range m.shards {
		s.mu.RLock()
		batch := make([]kv, 0, len(s.m))
		for k, v := range s.m {
			batch = append(batch, kv{k, v})
		}
		s.mu.RUnlock()
		for _, e := range batch {
			if !fn(e.k, e.v) {
				return
			}
		}
	}
}

// UpdateAll applies fn to every entry, one shard at a time.
func (m *Map[K, V]) UpdateAll(fn func(k K, v V) (next V, keep bool)) {
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.m {
			next, keep := fn(k, v)
			if keep {
				s.m[k] = next
			} else {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}

func (m *Map[K, V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Keys returns the keys present while each shard was visited.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, 0, m.Len())
	m.Range(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Drain empties the map and returns what it held.
func (m *Map[K, V]) Drain() map[K]V {
	out := make(map[K]V)
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.m {
			out[k] = v
		}
		s.m = make(map[K]V)
		s.mu.Unlock()
	}
	return out
}
