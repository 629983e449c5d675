// Package engine defines the contract between the core and a language
// runtime. An Engine runs code and exposes its variable namespace in terms of
// interchange values; it never shares memory with another Engine.
//
// Engines are started through named drivers:
//
//	engine.Register("goeval", goeval.New)
//	e, err := engine.Start(ctx, spec)
package engine

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/polyglot/core/protocol"
	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Engine drives one language runtime. Callers issue at most one request at
// a time; Interrupt may be called concurrently with Execute.
type Engine interface {
	// Execute runs code and returns its outputs. A non-nil error means the
	// request itself failed (context done, runtime dead); failures of the
	// user's code are reported in Reply.Error.
	Execute(ctx context.Context, code string) (Reply, error)
	// Get copies a variable out of the namespace. Returns ErrUndefined
	// when the name is not bound.
	Get(ctx context.Context, name string) (interchange.Value, error)
	// Set binds a copy of value under name, replacing any previous binding.
	// Returns ErrUnsupported when the runtime cannot represent the value.
	Set(ctx context.Context, name string, value interchange.Value) error
	// Names lists the user-visible variables.
	Names(ctx context.Context) ([]string, error)
	// Interrupt stops the running request, if any. It returns ErrCrashed
	// when the runtime could not recover.
	Interrupt() error
	// Shutdown stops the runtime and releases its resources.
	Shutdown(ctx context.Context) error
}

// Reply holds the outputs of an Execute call.
type Reply struct {
	Outputs []protocol.Output
	Error   *Error
}

// Error is an exception raised by user code inside the runtime.
type Error struct {
	Name      string
	Value     string
	Traceback []string
}

func (e *Error) Error() string {
	if e.Value == "" {
		return e.Name
	}
	return e.Name + ": " + e.Value
}

// Output converts the error into an error output for the host.
func (e *Error) Output() protocol.Output {
	text := e.Error()
	if len(e.Traceback) > 0 {
		text = strings.Join(e.Traceback, "\n") + "\n" + text
	}
	return protocol.Output{
		Type: protocol.OutputError,
		Name: e.Name,
		Text: text,
	}
}
