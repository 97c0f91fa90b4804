// Package cache provides the shard cache used by an IndexedBlobStore.
//
// A store caches decoded shard rows keyed by shard file name, so a shard is
// fetched and parsed at most once per store. Entries never expire: dataset
// versions are immutable, and a new version is opened as a new store.
package cache

import "sync"

// Cache stores decoded values by key.
//
// Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get returns the value stored for key.
	Get(key string) (V, bool)

	// Put stores v under key, replacing any previous value.
	Put(key string, v V)
}

// Memory is an unbounded in-memory cache.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// NewMemory creates an empty Memory cache.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{entries: make(map[string]V)}
}

// Get returns the value stored for key.
func (m *Memory[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Put stores v under key.
func (m *Memory[V]) Put(key string, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]V)
	}
	m.entries[key] = v
}

// Len returns the number of cached entries.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Nop never stores anything. Use it to disable caching.
type Nop[V any] struct{}

// Get always misses.
func (Nop[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

// Put discards v.
func (Nop[V]) Put(string, V) {}
