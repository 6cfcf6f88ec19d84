// Package identity implements a concurrent instance cache keyed by table
// name and primary-key value. One live value per (table, pk) pair.
package identity

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// shardCount is a power of two so shard selection is a mask.
const shardCount = 32

// Key addresses one cached instance.
type Key struct {
	Table string
	PK    string
}

// KeyOf builds a Key from a table name and any primary-key value. Values
// are normalized through fmt so 1 (int64) and 1 (float64 decoded from
// JSON) address the same entry.
func KeyOf(table string, pk any) Key {
	switch v := pk.(type) {
	case float64:
		if v == float64(int64(v)) {
			return Key{Table: table, PK: fmt.Sprintf("%d", int64(v))}
		}
	case float32:
		if v == float32(int64(v)) {
			return Key{Table: table, PK: fmt.Sprintf("%d", int64(v))}
		}
	}
	return Key{Table: table, PK: fmt.Sprintf("%v", pk)}
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key]any
}

// Map is a sharded in-memory identity map. The zero value is not usable;
// construct with NewMap.
type Map struct {
	shards [shardCount]*shard
}

// NewMap returns an empty identity map.
func NewMap() *Map {
	m := &Map{}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[Key]any)}
	}
	return m
}

func (m *Map) shardFor(k Key) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.Table))
	h.Write([]byte{0})
	h.Write([]byte(k.PK))
	return m.shards[h.Sum32()&(shardCount-1)]
}

// Register stores value under key, replacing any previous instance.
func (m *Map) Register(k Key, value any) {
	s := m.shardFor(k)
	s.mu.Lock()
	s.entries[k] = value
	s.mu.Unlock()
}

// Upsert calls fn with the cached instance for key (or nil and false when
// absent) and stores its return value, all under the shard lock. Callers
// use it to decide between a cached instance and a fresh one, or to rewrite
// a cached instance without racing concurrent upserts.
func (m *Map) Upsert(k Key, fn func(cached any, ok bool) any) {
	s := m.shardFor(k)
	s.mu.Lock()
	v, ok := s.entries[k]
	s.entries[k] = fn(v, ok)
	s.mu.Unlock()
}

// Lookup returns the cached instance for key, if present.
func (m *Map) Lookup(k Key) (any, bool) {
	s := m.shardFor(k)
	s.mu.RLock()
	v, ok := s.entries[k]
	s.mu.RUnlock()
	return v, ok
}

// Evict removes the instance cached under key. Evicting an absent key is
// a no-op.
func (m *Map) Evict(k Key) {
	s := m.shardFor(k)
	s.mu.Lock()
	delete(s.entries, k)
	s.mu.Unlock()
}

// EvictTable removes every instance cached for the given table. Filtered
// mutations call this: the affected row set is not known without a second
// query, so the whole table's cache goes.
func (m *Map) EvictTable(table string) {
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.entries {
			if k.Table == table {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

// Clear empties the map.
func (m *Map) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		s.entries = make(map[Key]any)
		s.mu.Unlock()
	}
}

// Len reports the number of cached instances across all shards.
func (m *Map) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
