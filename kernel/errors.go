package kernel

import (
	"errors"

	"github.com/tailored-agentic-units/polyglot/bridge"
	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/engine"
	"github.com/tailored-agentic-units/polyglot/magic"
	"github.com/tailored-agentic-units/polyglot/session"
)

// Sentinel errors for kernel operations.
var (
	ErrConfigFormat = errors.New("unsupported config format")
	ErrNoSession    = errors.New("no live session")
	ErrClosed       = errors.New("kernel closed")
)

var errorNames = []struct {
	err  error
	name string
}{
	{catalog.ErrUnknownKernel, "UnknownKernel"},
	{session.ErrSessionBusy, "SessionBusy"},
	{session.ErrKernelUnavailable, "KernelUnavailable"},
	{magic.ErrMalformedDirective, "MalformedDirective"},
	{bridge.ErrNameNotFound, "NameNotFound"},
	{bridge.ErrUnsupportedType, "UnsupportedType"},
	{session.ErrCancelled, "Cancelled"},
	{session.ErrTimeout, "Timeout"},
}

// ErrorName returns the reply ename for err: the engine error name for
// failures of user code, the sentinel's name for router failures, and
// "Error" otherwise. A nil error has no name.
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	var userErr *engine.Error
	if errors.As(err, &userErr) {
		return userErr.Name
	}
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return "Error"
}
