package provider

import (
	"context"
	"sync"
	"time"
)

// Registry manages all payment provider implementations
type Registry struct {
	factories map[string]Factory
	active    map[string]Adapter
	mu        sync.RWMutex

	healthTTL     time.Duration
	healthResults map[string]bool
	healthAt      time.Time
	healthMu      sync.Mutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Adapter),
		healthTTL: 30 * time.Second,
	}
}

// Register adds a provider factory to the registry
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get retrieves a provider factory by name
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, &UnknownProviderError{Provider: name}
	}

	return factory, nil
}

// CreateAdapter creates a new uninitialized adapter instance
func (r *Registry) CreateAdapter(name string) (Adapter, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	return factory(), nil
}

// Activate stores an initialized adapter for resolution and health checks
func (r *Registry) Activate(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[name] = adapter
}

// Resolve returns the initialized adapter for a provider name
func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.active[name]
	if !exists {
		return nil, &UnknownProviderError{Provider: name}
	}

	return adapter, nil
}

// Names returns a list of all registered provider names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}

// ActiveNames returns the names of providers with initialized adapters
func (r *Registry) ActiveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}

	return names
}

// HealthCheckAll runs HealthCheck on every active adapter and returns a
// per-provider result map. Results are cached briefly to bound the load
// put on providers by repeated health endpoints.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.healthMu.Lock()
	defer r.healthMu.Unlock()

	if r.healthResults != nil && time.Since(r.healthAt) < r.healthTTL {
		cached := make(map[string]bool, len(r.healthResults))
		for k, v := range r.healthResults {
			cached[k] = v
		}
		return cached
	}

	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.active))
	for name, adapter := range r.active {
		adapters[name] = adapter
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(adapters))
	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for name, adapter := range adapters {
		wg.Add(1)
		go func(name string, adapter Adapter) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			err := adapter.HealthCheck(checkCtx)

			resultMu.Lock()
			results[name] = err == nil
			resultMu.Unlock()
		}(name, adapter)
	}
	wg.Wait()

	r.healthResults = results
	r.healthAt = time.Now()

	out := make(map[string]bool, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}

// DefaultRegistry is the global default provider registry
var DefaultRegistry = NewRegistry()

// Register registers a provider with the default registry
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// Get retrieves a provider factory from the default registry
func Get(name string) (Factory, error) {
	return DefaultRegistry.Get(name)
}

// CreateAdapter creates an adapter instance from the default registry
func CreateAdapter(name string) (Adapter, error) {
	return DefaultRegistry.CreateAdapter(name)
}
