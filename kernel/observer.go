package kernel

import "github.com/tailored-agentic-units/polyglot/observability"

// Kernel event types emitted while routing submissions.
const (
	EventSubmitStart    observability.EventType = "kernel.submit.start"
	EventSubmitComplete observability.EventType = "kernel.submit.complete"
	EventActivate       observability.EventType = "kernel.activate"
	EventTransfer       observability.EventType = "kernel.transfer"
	EventStatus         observability.EventType = "kernel.session.status"
	EventHistoryClear   observability.EventType = "kernel.history.clear"
	EventCatalogUpdate  observability.EventType = "kernel.catalog.update"
	EventError          observability.EventType = "kernel.error"
)
