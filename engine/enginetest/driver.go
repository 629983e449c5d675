package enginetest

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/engine"
)

// Driver hands out scripted engines and remembers them by kernel name so
// tests can reach the engine behind a session.
type Driver struct {
	mu      sync.Mutex
	engines map[string]*Engine
	starts  map[string]int
	fail    map[string]error
	gate    chan struct{}
}

// NewDriver creates a driver with no engines.
func NewDriver() *Driver {
	return &Driver{
		engines: make(map[string]*Engine),
		starts:  make(map[string]int),
		fail:    make(map[string]error),
	}
}

// FailStart makes every start of the named kernel return err.
func (d *Driver) FailStart(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[name] = err
}

// Hold makes starts wait until the returned function is called.
func (d *Driver) Hold() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate := make(chan struct{})
	d.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Start satisfies engine.Factory.
func (d *Driver) Start(ctx context.Context, spec catalog.Spec) (engine.Engine, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.starts[spec.Name]++
	if err := d.fail[spec.Name]; err != nil {
		return nil, err
	}
	e := New()
	d.engines[spec.Name] = e
	return e, nil
}

// Engine returns the most recent engine started for the kernel name.
func (d *Driver) Engine(name string) *Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engines[name]
}

// Starts returns how many times the kernel name was started.
func (d *Driver) Starts(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts[name]
}
