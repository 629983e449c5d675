package server

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/polyglot/catalog"
	"github.com/tailored-agentic-units/polyglot/kernel"
	"github.com/tailored-agentic-units/polyglot/session"
)

// connectError maps kernel errors to Connect codes.
func connectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, catalog.ErrUnknownKernel):
		code = connect.CodeNotFound
	case errors.Is(err, kernel.ErrNoSession), errors.Is(err, session.ErrSessionBusy):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, session.ErrKernelUnavailable), errors.Is(err, kernel.ErrClosed), errors.Is(err, session.ErrClosed):
		code = connect.CodeUnavailable
	}
	return connect.NewError(code, err)
}
