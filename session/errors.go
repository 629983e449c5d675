package session

import "errors"

// Sentinel errors for session and registry operations.
var (
	ErrSessionBusy       = errors.New("session busy")
	ErrKernelUnavailable = errors.New("kernel unavailable")
	ErrCancelled         = errors.New("execution cancelled")
	ErrTimeout           = errors.New("execution timed out")
	ErrClosed            = errors.New("registry closed")
)
