package dispatch

import "github.com/tailored-agentic-units/ipybridge/observability"

const (
	EventHandlerFault observability.EventType = "dispatch.handler.fault"
	EventDrainDone    observability.EventType = "dispatch.drain.done"
)
