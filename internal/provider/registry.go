package provider

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps case-insensitive project names to provider constructors.
// It is populated once at startup and read concurrently afterwards.
type Registry struct {
	// constructors is keyed by lower-cased name.
	constructors map[string]Constructor
	// mu protects constructors against registration racing with lookups.
	mu sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// Register binds every provided name to the constructor.
// Re-registering a name silently replaces the previous binding.
func (r *Registry) Register(constructor Constructor, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		key := normalizeName(name)
		if key == "" {
			continue
		}

		r.constructors[key] = constructor
	}
}

// Lookup returns the constructor bound to name.
func (r *Registry) Lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	constructor, ok := r.constructors[normalizeName(name)]

	return constructor, ok && constructor != nil
}

// Names returns every bound name in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
