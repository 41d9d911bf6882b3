package store

import (
	"sync"

	"milista/internal/model"
)

// AuthHub implements the auth change-notification stream shared by every
// backend: the identity lives client-side regardless of where documents are
// stored, so sign-in state and its listeners are kept in-process.
type AuthHub struct {
	mu      sync.Mutex
	current *model.Identity
	subs    map[int]func(*model.Identity)
	nextID  int
}

// Set replaces the current identity (nil = signed out) and notifies every
// listener.
func (h *AuthHub) Set(id *model.Identity) {
	h.mu.Lock()
	h.current = id
	fns := make([]func(*model.Identity), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// Current returns the signed-in identity, or nil.
func (h *AuthHub) Current() *model.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe registers a listener, fires it once with the current identity,
// and returns an idempotent unsubscribe.
func (h *AuthHub) Subscribe(fn func(*model.Identity)) Unsubscribe {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(*model.Identity))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	current := h.current
	h.mu.Unlock()

	fn(current)

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}
