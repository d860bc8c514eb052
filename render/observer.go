package render

import "github.com/tailored-agentic-units/ipybridge/observability"

const (
	EventRendered    observability.EventType = "render.broadcast"
	EventUnknownType observability.EventType = "render.unknown_type"
	EventKernelDead  observability.EventType = "render.kernel_dead"
)
