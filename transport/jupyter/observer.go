package jupyter

import "github.com/tailored-agentic-units/ipybridge/observability"

const (
	EventKernelStarted  observability.EventType = "jupyter.kernel.started"
	EventConnected      observability.EventType = "jupyter.connected"
	EventDisconnected   observability.EventType = "jupyter.disconnected"
	EventHeartbeatLost  observability.EventType = "jupyter.heartbeat.lost"
	EventMessageDropped observability.EventType = "jupyter.message.dropped"
)
