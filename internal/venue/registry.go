// Package venue holds the adapter registry mapping venue names to their
// price sources and order executors.
package venue

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Registry indexes venue adapters by name. Registration happens during
// wiring; lookups happen on the hot path, so reads take an RLock.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]domain.PriceSource
	executors map[string]domain.OrderExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:   make(map[string]domain.PriceSource),
		executors: make(map[string]domain.OrderExecutor),
	}
}

// RegisterSource adds a price source under its venue name, replacing any
// previous source for that venue.
func (r *Registry) RegisterSource(src domain.PriceSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Venue()] = src
}

// RegisterExecutor adds an order executor under its venue name.
func (r *Registry) RegisterExecutor(exec domain.OrderExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Venue()] = exec
}

// Deregister removes every adapter registered under name. Lookups for the
// venue fail afterwards; in-flight calls on its adapters are unaffected.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, name)
	delete(r.executors, name)
}

// Sources returns all registered price sources.
func (r *Registry) Sources() []domain.PriceSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PriceSource, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	return out
}

// Executor returns the order executor for a venue.
func (r *Registry) Executor(name string) (domain.OrderExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q: %w", name, domain.ErrVenueNotRegistered)
	}
	return exec, nil
}

// Venues returns the names of all venues with a registered executor.
func (r *Registry) Venues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}
