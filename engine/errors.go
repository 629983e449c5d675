package engine

import "errors"

// Sentinel errors reported by engines and the driver registry.
var (
	ErrUndefined   = errors.New("variable not defined")
	ErrUnsupported = errors.New("value not representable")
	ErrCrashed     = errors.New("engine crashed")

	ErrDriverNotFound = errors.New("driver not found")
	ErrDriverExists   = errors.New("driver already registered")
	ErrEmptyDriver    = errors.New("driver name is empty")
)
