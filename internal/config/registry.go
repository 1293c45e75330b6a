package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cortexkg/cortexkg/internal/embedding"
)

// ErrProviderNotRegistered is returned by Create when no factory has been
// registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps embedding provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]func(ProviderEntry) (embedding.Provider, error)
}

// NewRegistry returns a [Registry] pre-populated with the "hash" provider,
// which needs no API key and always succeeds.
func NewRegistry() *Registry {
	r := &Registry{
		providers: make(map[string]func(ProviderEntry) (embedding.Provider, error)),
	}
	r.Register("hash", func(entry ProviderEntry) (embedding.Provider, error) {
		dims := entry.Dimensions
		if dims == 0 {
			dims = 256
		}
		return embedding.NewHashProvider(dims), nil
	})
	return r
}

// Register registers an embedding provider factory under name. Subsequent
// calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(ProviderEntry) (embedding.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// Create instantiates an embedding provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) Create(entry ProviderEntry) (embedding.Provider, error) {
	r.mu.RLock()
	factory, ok := r.providers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
