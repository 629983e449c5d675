// Package session tracks the language runtimes attached to a document.
// A Session wraps one engine and allows a single outstanding request; a
// Registry owns the sessions of one document and which of them is active.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusStarting Status = iota
	StatusReady
	StatusBusy
	StatusCrashed
	StatusShuttingDown
)

var statusNames = [...]string{
	StatusStarting:     "starting",
	StatusReady:        "ready",
	StatusBusy:         "busy",
	StatusCrashed:      "crashed",
	StatusShuttingDown: "shutting_down",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Transition reports a session entering a new status.
type Transition struct {
	SessionID string
	Kernel    string
	Status    Status
}

// StatusFunc observes transitions. It is called without locks held and
// must not block.
type StatusFunc func(Transition)

var errInterrupted = errors.New("interrupted")

// Session is a live runtime for one kernel. Safe for concurrent use.
type Session struct {
	id     string
	spec   catalog.Spec
	engine engine.Engine
	notify StatusFunc

	mu     sync.Mutex
	status Status
	cancel context.CancelCauseFunc
	lost   bool
}

func newSession(id string, spec catalog.Spec, eng engine.Engine, notify StatusFunc) *Session {
	return &Session{
		id:     id,
		spec:   spec,
		engine: eng,
		notify: notify,
		status: StatusReady,
	}
}

// ID returns the session's UUIDv7 identifier.
func (s *Session) ID() string {
	return s.id
}

// Kernel returns the catalog name the session was started for.
func (s *Session) Kernel() string {
	return s.spec.Name
}

// Spec returns the kernel spec the session was started from.
func (s *Session) Spec() catalog.Spec {
	return s.spec
}

// Color returns the kernel's display color.
func (s *Session) Color() catalog.Color {
	return s.spec.Color
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Execute runs code in the engine. It fails with ErrSessionBusy while
// another request is outstanding and with ErrKernelUnavailable once the
// engine has crashed.
func (s *Session) Execute(ctx context.Context, code string) (engine.Reply, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return engine.Reply{}, err
	}

	reply, err := s.engine.Execute(runCtx, code)
	err = s.classify(runCtx, err)
	s.finish(err)
	return reply, err
}

// Get copies a variable out of the session's namespace.
func (s *Session) Get(ctx context.Context, name string) (interchange.Value, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	v, err := s.engine.Get(runCtx, name)
	err = s.classify(runCtx, err)
	s.finish(err)
	return v, err
}

// Set binds a copy of value under name in the session's namespace.
func (s *Session) Set(ctx context.Context, name string, value interchange.Value) error {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	err = s.classify(runCtx, s.engine.Set(runCtx, name, value))
	s.finish(err)
	return err
}

// Names lists the variables in the session's namespace.
func (s *Session) Names(ctx context.Context) ([]string, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	names, err := s.engine.Names(runCtx)
	err = s.classify(runCtx, err)
	s.finish(err)
	return names, err
}

// Interrupt cancels the outstanding request, if any. The pending call
// returns ErrCancelled; the session is left Ready, or Crashed when the
// engine could not recover.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	if s.status != StatusBusy || s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	err := s.engine.Interrupt()
	if errors.Is(err, engine.ErrCrashed) {
		s.mu.Lock()
		s.lost = true
		s.mu.Unlock()
	}
	cancel(errInterrupted)

	if err != nil && !errors.Is(err, engine.ErrCrashed) {
		return fmt.Errorf("interrupt %s: %w", s.spec.Name, err)
	}
	return nil
}

func (s *Session) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	switch s.status {
	case StatusReady:
	case StatusBusy:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, s.spec.Name)
	default:
		status := s.status
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrKernelUnavailable, s.spec.Name, status)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.status = StatusBusy
	s.mu.Unlock()

	s.publish(StatusBusy)
	return runCtx, nil
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(nil)
		s.cancel = nil
	}
	if s.status != StatusBusy {
		s.mu.Unlock()
		return
	}
	next := StatusReady
	if s.lost || errors.Is(err, engine.ErrCrashed) {
		next = StatusCrashed
	}
	s.status = next
	s.mu.Unlock()

	s.publish(next)
}

// classify maps context and engine failures to the session sentinels.
func (s *Session) classify(runCtx context.Context, err error) error {
	if err == nil {
		return nil
	}

	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, errInterrupted):
		return fmt.Errorf("%w: %s", ErrCancelled, s.spec.Name)
	case errors.Is(err, engine.ErrCrashed):
		return fmt.Errorf("%w: %s: %w", ErrKernelUnavailable, s.spec.Name, err)
	case errors.Is(cause, context.DeadlineExceeded):
		_ = s.engine.Interrupt()
		return fmt.Errorf("%w: %s", ErrTimeout, s.spec.Name)
	case runCtx.Err() != nil:
		_ = s.engine.Interrupt()
		return fmt.Errorf("%w: %s: %w", ErrCancelled, s.spec.Name, cause)
	}
	return err
}

// retire moves an idle session to ShuttingDown so that no new execution
// can begin. It fails with ErrSessionBusy while the session is executing.
func (s *Session) retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusBusy {
		return fmt.Errorf("%w: %s", ErrSessionBusy, s.spec.Name)
	}
	s.status = StatusShuttingDown
	return nil
}

// shutdown stops the engine. The session is unusable afterwards.
func (s *Session) shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.status = StatusShuttingDown
	cancel := s.cancel
	s.mu.Unlock()

	s.publish(StatusShuttingDown)
	if cancel != nil {
		cancel(errInterrupted)
	}
	if err := s.engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown %s: %w", s.spec.Name, err)
	}
	return nil
}

func (s *Session) publish(status Status) {
	if s.notify != nil {
		s.notify(Transition{SessionID: s.id, Kernel: s.spec.Name, Status: status})
	}
}
