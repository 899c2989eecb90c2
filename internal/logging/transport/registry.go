package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

// Factory builds a logger from transport configuration.
type Factory func(config logging.Config) (logging.Logger, error)

// Registry maps transport names to factories. It is populated by explicit
// Register calls during setup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register transport: name and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("transport %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) New(name string, config logging.Config) (logging.Logger, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport %q", name)
	}
	return factory(config)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
