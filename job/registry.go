package job

import (
	"context"
	"sync"
)

// Handler executes a job and returns the encoded result documents.
// A nil document slice with a nil error means the handler persisted the
// result out-of-band (blob store) because of its size.
type Handler func(ctx context.Context, j *Job) ([]byte, error)

// Registry maps scrape modes to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Mode]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Mode]Handler),
	}
}

// Register registers the handler for a scrape mode, replacing any
// previous registration.
func (r *Registry) Register(mode Mode, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[mode] = h
}

// Get returns the handler for the given mode.
// Returns false if no handler is registered.
func (r *Registry) Get(mode Mode) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[mode]
	return h, ok
}

// Modes returns all registered scrape modes.
func (r *Registry) Modes() []Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]Mode, 0, len(r.handlers))
	for m := range r.handlers {
		modes = append(modes, m)
	}
	return modes
}
