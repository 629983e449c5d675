package bridge

import "errors"

// Sentinel errors for variable transfers.
var (
	ErrNameNotFound    = errors.New("name not found")
	ErrUnsupportedType = errors.New("unsupported type")
)
