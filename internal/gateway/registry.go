package gateway

import (
	"sort"
	"sync"
)

// Entry is a live connection that a Registry can hold.
type Entry interface {
	comparable

	// Key is the registry key: the device ID or the client connection ID.
	Key() string

	// Terminate ends the connection. It must be idempotent and must not
	// call back into the registry while the caller holds its lock.
	Terminate(reason Reason, cause error)
}

// Registry is a concurrency-safe set of live connections keyed by Key.
// No method performs network I/O while holding the lock.
type Registry[T Entry] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T Entry]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Add inserts c. A different connection already stored under the same key
// is replaced and returned. It is terminated with ReasonEvicted on its own
// goroutine, since a close handshake with a half-open socket can block for
// the whole write timeout.
func (r *Registry[T]) Add(c T) (evicted T, ok bool) {
	key := c.Key()

	r.mu.Lock()
	prev, had := r.items[key]
	r.items[key] = c
	r.mu.Unlock()

	if !had || prev == c {
		var zero T
		return zero, false
	}
	go prev.Terminate(ReasonEvicted, nil)
	return prev, true
}

// Remove deletes c only if c itself is the stored entry. It reports
// whether anything was removed.
func (r *Registry[T]) Remove(c T) bool {
	key := c.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.items[key]; ok && cur == c {
		delete(r.items, key)
		return true
	}
	return false
}

// Find returns the connection stored under key.
func (r *Registry[T]) Find(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[key]
	return c, ok
}

// Snapshot returns the live connections ordered by key.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	out := make([]T, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of live connections.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
