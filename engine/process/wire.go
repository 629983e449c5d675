package process

import (
	"encoding/json"

	"github.com/tailored-agentic-units/polyglot/core/protocol"
)

// Operations understood by a runtime process.
const (
	OpExecute  = "execute"
	OpGet      = "get"
	OpSet      = "set"
	OpNames    = "names"
	OpShutdown = "shutdown"
)

// Response statuses.
const (
	StatusOK          = "ok"
	StatusUndefined   = "undefined"
	StatusUnsupported = "unsupported"
	StatusCrashed     = "crashed"
	StatusFailed      = "failed"
)

// Request is one line written to the runtime's stdin.
// Value holds an interchange value encoded with interchange.Marshal.
type Request struct {
	ID    uint64          `json:"id"`
	Op    string          `json:"op"`
	Code  string          `json:"code,omitempty"`
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Response is one line read from the runtime's stdout. It echoes the
// request ID.
type Response struct {
	ID      uint64            `json:"id"`
	Status  string            `json:"status"`
	Outputs []protocol.Output `json:"outputs,omitempty"`
	Error   *ErrorInfo        `json:"error,omitempty"`
	Value   json.RawMessage   `json:"value,omitempty"`
	Names   []string          `json:"names,omitempty"`
	Message string            `json:"message,omitempty"`
}

// ErrorInfo carries an exception raised by user code.
type ErrorInfo struct {
	Name      string   `json:"ename"`
	Value     string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}
