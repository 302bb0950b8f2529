package provider

import (
	"fmt"
	"sync"
)

// Registry holds configured adapters keyed by provider name. It is an
// explicit object constructed once at startup and passed to whatever needs
// it; there is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	active    string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds an adapter, replacing any existing adapter under that name.
// The first registered provider becomes the active one until SetActive says
// otherwise.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.active == "" {
		r.active = p.Name()
	}
}

// SetActive marks the named provider as the default for operations that
// don't name one explicitly
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("email provider %q is not registered", name)
	}
	r.active = name
	return nil
}

// Resolve returns the named adapter, or the active one when name is empty
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.active
	}
	if name == "" {
		return nil, fmt.Errorf("no email provider is configured")
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("email provider %q is not registered", name)
	}
	return p, nil
}

// Active returns the default adapter
func (r *Registry) Active() (Provider, error) {
	return r.Resolve("")
}

// ActiveName returns the default adapter's name, or "" when none is set
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Names lists all registered provider names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
