package catalog

import "errors"

// Sentinel errors for kernel lookup.
var (
	ErrUnknownKernel = errors.New("unknown kernel")
	ErrEmptyName     = errors.New("kernel name is empty")
	ErrDuplicateName = errors.New("duplicate kernel name")
	ErrInvalidColor  = errors.New("invalid kernel color")
)
