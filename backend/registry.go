package backend

import (
	"sort"
	"sync"
)

// Factory constructs a backend adapter. Factories run at most once per
// identifier; the registry caches the instance for the process lifetime.
type Factory func() Backend

// Registry resolves backend adapters by identifier, filters them by
// availability, and exposes the configured default debate roster.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Backend
	roster    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Backend),
	}
}

// Register adds a backend factory under the given identifier. A factory
// registered twice replaces the earlier one; a cached instance for the
// identifier is discarded.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	delete(r.instances, id)
}

// Resolve returns the cached singleton adapter for id, constructing it
// on first use.
func (r *Registry) Resolve(id string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(id)
}

func (r *Registry) resolveLocked(id string) (Backend, error) {
	if b, ok := r.instances[id]; ok {
		return b, nil
	}
	f, ok := r.factories[id]
	if !ok {
		return nil, &Error{Kind: KindUnknownBackend, Backend: id, Message: "not registered"}
	}
	b := f()
	r.instances[id] = b
	return b, nil
}

// Known returns all registered identifiers, sorted.
func (r *Registry) Known() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Available returns all registered backends whose credentials are
// present, in sorted identifier order.
func (r *Registry) Available() []Backend {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Backend
	for _, id := range ids {
		b, err := r.resolveLocked(id)
		if err != nil {
			continue
		}
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}

// SetDefaultRoster configures the ordered default participant list for
// new debates.
func (r *Registry) SetDefaultRoster(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = append([]string(nil), ids...)
}

// DefaultRoster returns the configured default participants, in order,
// filtered to those currently available. Unknown identifiers in the
// configured roster are skipped. Callers must treat a roster of fewer
// than two backends as an infeasible debate.
func (r *Registry) DefaultRoster() []Backend {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Backend
	for _, id := range r.roster {
		b, err := r.resolveLocked(id)
		if err != nil {
			continue
		}
		if b.Available() {
			out = append(out, b)
		}
	}
	return out
}
