// Package tabs keeps per-browser-tab view state on the server. Each tab
// sends a client ID; the registry hands back the same view for the same ID
// until the tab has been idle long enough to be swept.
package tabs

import (
	"sync"
	"time"
)

type entry[V any] struct {
	view     V
	lastSeen time.Time
}

// Registry is safe for concurrent use.
type Registry[V any] struct {
	mu    sync.Mutex
	items map[string]*entry[V]
	newFn func(id string) V
	now   func() time.Time
}

// NewRegistry creates views on first use with newFn.
func NewRegistry[V any](newFn func(id string) V) *Registry[V] {
	return &Registry[V]{
		items: make(map[string]*entry[V]),
		newFn: newFn,
		now:   time.Now,
	}
}

// Get returns the view for id, creating it if needed.
func (r *Registry[V]) Get(id string) V {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]
	if !ok {
		e = &entry[V]{view: r.newFn(id)}
		r.items[id] = e
	}
	e.lastSeen = r.now()
	return e.view
}

// Drop forgets the view for id.
func (r *Registry[V]) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// Sweep drops views idle for longer than maxIdle and returns how many were
// dropped.
func (r *Registry[V]) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	n := 0
	for id, e := range r.items {
		if e.lastSeen.Before(cutoff) {
			delete(r.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of live views.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
