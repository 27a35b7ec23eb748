package embedding

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves embedding providers by name. The zero value is not
// usable; create one with NewRegistry. Safe for concurrent use after
// registration.
type Registry struct {
	mu          sync.RWMutex
	embedders   map[string]Embedder
	defaultName string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{embedders: make(map[string]Embedder)}
}

// Register adds a provider under its own name. The first registration
// becomes the default until SetDefault says otherwise.
func (r *Registry) Register(e Embedder) error {
	if e == nil {
		return fmt.Errorf("embedder cannot be nil")
	}
	name := e.Provider()
	if name == "" {
		return fmt.Errorf("embedder has no provider name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.embedders[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.embedders[name] = e
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault picks the provider used when no name is given.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.embedders[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

// Get returns the provider registered under name. An empty name resolves
// to the default provider.
func (r *Registry) Get(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		return r.defaultLocked()
	}
	e, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return e, nil
}

// Default returns the default provider.
func (r *Registry) Default() (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultLocked()
}

func (r *Registry) defaultLocked() (Embedder, error) {
	if r.defaultName == "" {
		return nil, ErrNoDefaultProvider
	}
	return r.embedders[r.defaultName], nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.embedders))
	for name := range r.embedders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
