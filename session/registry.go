package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/core/config"
	"github.com/tailored-agentic-units/polyglot/engine"
)

// Option configures a Registry.
type Option func(*Registry)

// WithStatusFunc sets the observer for session transitions.
func WithStatusFunc(fn StatusFunc) Option {
	return func(r *Registry) { r.notify = fn }
}

// Registry holds at most one Session per kernel for a document and tracks
// the active one. Sessions are created on first reference. Safe for
// concurrent use; engine starts run outside the registry lock.
type Registry struct {
	catalog      *catalog.Catalog
	start        engine.Factory
	startTimeout config.Duration
	notify       StatusFunc
	starts       singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
	active   *Session
	closed   bool
}

// NewRegistry creates an empty registry that resolves tags through cat and
// starts engines with start.
func NewRegistry(cfg *Config, cat *catalog.Catalog, start engine.Factory, opts ...Option) *Registry {
	r := &Registry{
		catalog:      cat,
		start:        start,
		startTimeout: cfg.StartTimeout,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for tag, starting one if none exists.
// Concurrent first references start a single engine.
func (r *Registry) GetOrCreate(ctx context.Context, tag string) (*Session, error) {
	spec, err := r.catalog.Resolve(tag)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, exists := r.sessions[spec.Name]
	closed := r.closed
	r.mu.RUnlock()

	if exists {
		return s, nil
	}
	if closed {
		return nil, ErrClosed
	}

	v, err, _ := r.starts.Do(spec.Name, func() (any, error) {
		return r.create(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) create(ctx context.Context, spec catalog.Spec) (*Session, error) {
	r.mu.RLock()
	s, exists := r.sessions[spec.Name]
	r.mu.RUnlock()
	if exists {
		return s, nil
	}

	id := uuid.Must(uuid.NewV7()).String()
	r.publish(Transition{SessionID: id, Kernel: spec.Name, Status: StatusStarting})

	startCtx := ctx
	if r.startTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, r.startTimeout.Std())
		defer cancel()
	}

	eng, err := r.start(startCtx, spec)
	if err != nil {
		r.publish(Transition{SessionID: id, Kernel: spec.Name, Status: StatusCrashed})
		return nil, fmt.Errorf("%w: %w", ErrKernelUnavailable, err)
	}

	s = newSession(id, spec, eng, r.notify)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = eng.Shutdown(ctx)
		return nil, ErrClosed
	}
	r.sessions[spec.Name] = s
	r.mu.Unlock()

	r.publish(Transition{SessionID: id, Kernel: spec.Name, Status: StatusReady})
	return s, nil
}

// SetActive makes the session for tag the active one. With create, a
// missing session is started first; without it, a tag with no live
// session fails with catalog.ErrUnknownKernel.
func (r *Registry) SetActive(ctx context.Context, tag string, create bool) (*Session, error) {
	var (
		s   *Session
		err error
	)
	if create {
		s, err = r.GetOrCreate(ctx, tag)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if s, ok = r.Get(tag); !ok {
			return nil, fmt.Errorf("%w: no session for %s", catalog.ErrUnknownKernel, tag)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.Kernel()] != s {
		return nil, fmt.Errorf("%w: %s was removed", ErrKernelUnavailable, s.Kernel())
	}
	r.active = s
	return s, nil
}

// Active returns the active session, if any.
func (r *Registry) Active() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != nil
}

// Get returns the live session for tag without starting one.
func (r *Registry) Get(tag string) (*Session, bool) {
	spec, ok := r.catalog.Lookup(tag)
	if !ok {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[spec.Name]
	return s, ok
}

// List returns the live sessions sorted by kernel name.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Kernel() < sessions[j].Kernel()
	})
	return sessions
}

// Remove shuts down the session for tag. It fails with ErrSessionBusy
// while the session is executing. Removing the active session leaves no
// session active.
func (r *Registry) Remove(ctx context.Context, tag string) (*Session, error) {
	spec, err := r.catalog.Resolve(tag)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, exists := r.sessions[spec.Name]
	if !exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: no session for %s", catalog.ErrUnknownKernel, tag)
	}
	if err := s.retire(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	delete(r.sessions, spec.Name)
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()

	return s, s.shutdown(ctx)
}

// Close shuts down every session concurrently. The registry accepts no
// new sessions afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.active = nil
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			return s.shutdown(gctx)
		})
	}
	return g.Wait()
}

func (r *Registry) publish(t Transition) {
	if r.notify != nil {
		r.notify(t)
	}
}
