package bridge

import "github.com/tailored-agentic-units/ipybridge/observability"

// Bridge event types.
const (
	EventConnected    observability.EventType = "bridge.connected"
	EventRun          observability.EventType = "bridge.run"
	EventRestart      observability.EventType = "bridge.restart"
	EventInputStale   observability.EventType = "bridge.input.stale"
	EventInputAborted observability.EventType = "bridge.input.aborted"
	EventError        observability.EventType = "bridge.error"
)
