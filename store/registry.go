// Package store holds the BackingStore implementations a FileSystem can
// mirror file data onto, and the registry the CLI picks them from by name
package store

import (
	"fmt"
	"sync"

	"github.com/brettbedarf/bastion"
)

// ProviderFunc adapts a plain constructor to [bastion.StoreProvider]
type ProviderFunc func(totalSize int64) (bastion.BackingStore, error)

func (f ProviderFunc) NewStore(totalSize int64) (bastion.BackingStore, error) {
	return f(totalSize)
}

// Registry maps store names to providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]bastion.StoreProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]bastion.StoreProvider{}}
}

// Register ties a provider to a name. The first registration for a name wins.
func (r *Registry) Register(name string, p bastion.StoreProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return
	}
	r.providers[name] = p
}

// GetProvider returns the provider registered under name
func (r *Registry) GetProvider(name string) (bastion.StoreProvider, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no store provider for %q", name)
	}
	return p, nil
}

// NewStore builds a store of the named type for a volume of totalSize bytes.
// All expected store types should be registered first, see [RegisterBuiltins].
func (r *Registry) NewStore(name string, totalSize int64) (bastion.BackingStore, error) {
	p, err := r.GetProvider(name)
	if err != nil {
		return nil, err
	}
	return p.NewStore(totalSize)
}

// Names returns every registered store name
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
