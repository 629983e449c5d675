// Package protocol defines the messages exchanged with the host notebook:
// execute requests and replies, per-session status broadcasts, and the
// kernel list. Each message converts to and from a structpb.Struct so it
// can travel over any protobuf transport without generated code.
package protocol

// ReplyStatus is the outcome reported in an ExecuteReply.
type ReplyStatus string

const (
	StatusOK    ReplyStatus = "ok"
	StatusError ReplyStatus = "error"
)

// ExecutionState is a session state as broadcast to the host.
type ExecutionState string

const (
	StateStarting     ExecutionState = "starting"
	StateBusy         ExecutionState = "busy"
	StateIdle         ExecutionState = "idle"
	StateDead         ExecutionState = "dead"
	StateShuttingDown ExecutionState = "shutting_down"
)

// ExecuteRequest carries a cell or console statement to run. Kernel is the
// cell's declared kernel; empty means the document's active kernel.
type ExecuteRequest struct {
	Document string `json:"document"`
	Code     string `json:"code"`
	Kernel   string `json:"kernel,omitempty"`
	Console  bool   `json:"console,omitempty"`
}

// ExecuteReply is the result of an ExecuteRequest. DisplayColor is the
// color of the kernel that ran the code so the host can decorate the cell.
type ExecuteReply struct {
	Status       ReplyStatus `json:"status"`
	Kernel       string      `json:"kernel,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	DisplayColor string      `json:"display_color,omitempty"`
	Outputs      []Output    `json:"outputs,omitempty"`
	ErrorName    string      `json:"ename,omitempty"`
	ErrorValue   string      `json:"evalue,omitempty"`
	Cleared      bool        `json:"cleared,omitempty"`
}

// StatusMessage announces a session state change.
type StatusMessage struct {
	Document  string         `json:"document"`
	SessionID string         `json:"session_id"`
	Kernel    string         `json:"kernel"`
	State     ExecutionState `json:"execution_state"`
}

// KernelInfo is one entry of the kernel list sent to the frontend.
type KernelInfo struct {
	Name     string            `json:"name"`
	Kernel   string            `json:"kernel,omitempty"`
	Language string            `json:"language,omitempty"`
	Color    string            `json:"color,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// InterruptRequest asks to cancel the running request of one kernel.
type InterruptRequest struct {
	Document string `json:"document"`
	Kernel   string `json:"kernel"`
}

// NavigateRequest moves the console history cursor of one kernel.
// Direction is "up" or "down".
type NavigateRequest struct {
	Document  string `json:"document"`
	Kernel    string `json:"kernel"`
	Direction string `json:"direction"`
}

// NavigateReply holds the history entry under the cursor. Found is false
// at the prompt (below the newest entry) or above the oldest.
type NavigateReply struct {
	Text  string `json:"text"`
	Found bool   `json:"found"`
}

// KernelList is the reply to a kernel list request.
type KernelList struct {
	Kernels []KernelInfo `json:"kernels"`
}

// RemoveRequest asks to shut down one kernel's session. The next reference
// to the kernel starts a fresh session.
type RemoveRequest struct {
	Document string `json:"document"`
	Kernel   string `json:"kernel"`
}

// WatchRequest subscribes to status messages. An empty Document watches
// every document.
type WatchRequest struct {
	Document string `json:"document,omitempty"`
}
