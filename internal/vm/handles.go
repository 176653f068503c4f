package vm

import "sync"

// HandleRegistry tracks host resources wired into one interpreter
// context. Each resource registers a release function on creation; the
// registry guarantees every release runs exactly once regardless of
// which exit path triggers teardown.
type HandleRegistry struct {
	mu       sync.Mutex
	releases []func()
	released bool
}

// NewHandleRegistry creates an empty registry.
func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{}
}

// Register adds a release function. Registering after release runs the
// function immediately so late-wired resources cannot leak.
func (h *HandleRegistry) Register(release func()) {
	if release == nil {
		return
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		release()
		return
	}
	h.releases = append(h.releases, release)
	h.mu.Unlock()
}

// Len returns the number of pending releases.
func (h *HandleRegistry) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.releases)
}

// ReleaseAll runs all registered releases in reverse registration order.
// Subsequent calls are no-ops.
func (h *HandleRegistry) ReleaseAll() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	releases := h.releases
	h.releases = nil
	h.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}
