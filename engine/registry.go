package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tailored-agentic-units/polyglot/catalog"
)

// Factory starts an engine for a kernel spec.
type Factory func(ctx context.Context, spec catalog.Spec) (Engine, error)

type registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var drivers = &registry{
	factories: make(map[string]Factory),
}

// Register adds a driver to the global registry.
// Returns ErrDriverExists if the name is taken; use Replace to swap one.
func Register(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyDriver
	}

	drivers.mu.Lock()
	defer drivers.mu.Unlock()

	if _, exists := drivers.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDriverExists, name)
	}

	drivers.factories[name] = factory
	return nil
}

// Replace updates an existing driver's factory.
func Replace(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyDriver
	}

	drivers.mu.Lock()
	defer drivers.mu.Unlock()

	if _, exists := drivers.factories[name]; !exists {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, name)
	}

	drivers.factories[name] = factory
	return nil
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	drivers.mu.RLock()
	defer drivers.mu.RUnlock()

	names := make([]string, 0, len(drivers.factories))
	for name := range drivers.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start creates an engine for spec using the driver it names.
// Factory errors are wrapped with the kernel name.
func Start(ctx context.Context, spec catalog.Spec) (Engine, error) {
	drivers.mu.RLock()
	factory, exists := drivers.factories[spec.Driver]
	drivers.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, spec.Driver)
	}

	e, err := factory(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("start kernel %s: %w", spec.Name, err)
	}
	return e, nil
}
