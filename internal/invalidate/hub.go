// Package invalidate fans file-change notifications out to registered caches.
package invalidate

import "sync"

// Watcher receives the root-relative path of a changed file. An empty path
// means everything should be considered stale.
type Watcher func(path string)

// Hub is an ordered list of watchers.
//
// Watchers are invoked synchronously, in registration order, outside the
// hub's lock so a watcher may register or unregister others.
type Hub struct {
	mu       sync.Mutex
	nextID   uint64
	watchers []registration
}

type registration struct {
	id uint64
	fn Watcher
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register appends w and returns a function that removes it again.
func (h *Hub) Register(w Watcher) (unregister func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.watchers = append(h.watchers, registration{id: id, fn: w})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, r := range h.watchers {
				if r.id == id {
					h.watchers = append(h.watchers[:i:i], h.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify reports that path changed.
func (h *Hub) Notify(path string) {
	h.mu.Lock()
	snapshot := make([]registration, len(h.watchers))
	copy(snapshot, h.watchers)
	h.mu.Unlock()

	for _, r := range snapshot {
		r.fn(path)
	}
}

// NotifyAll reports that every file may have changed.
func (h *Hub) NotifyAll() {
	h.Notify("")
}

// Len returns the number of registered watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}
