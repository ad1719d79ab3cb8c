// Package dispatch fans inbound telemetry out to the registered engines.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/metrics"
)

// Submitter is anything that can be offered a document. Every dispatch
// target implements it.
type Submitter interface {
	EntryID() string
	Submit(ctx context.Context, doc model.Document) bool
}

// Registry holds the active submitters keyed by entry id, in registration
// order. It is owned by the composition root.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Submitter
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Submitter)}
}

// Add registers s under its entry id.
func (r *Registry) Add(s Submitter) error {
	id := s.EntryID()
	if id == "" {
		return ErrInvalidEntry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, id)
	}
	r.entries[id] = s
	r.order = append(r.order, id)
	metrics.UpdateEngineCount(len(r.entries))
	return nil
}

// Remove unregisters the submitter with entry id and returns it.
func (r *Registry) Remove(id string) (Submitter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	metrics.UpdateEngineCount(len(r.entries))
	return s, true
}

// Get returns the submitter registered under id.
func (r *Registry) Get(id string) (Submitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[id]
	return s, ok
}

// List returns the registered submitters in registration order.
func (r *Registry) List() []Submitter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Submitter, len(r.order))
	for i, id := range r.order {
		out[i] = r.entries[id]
	}
	return out
}

// Len returns the number of registered submitters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
