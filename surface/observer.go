package surface

import "github.com/tailored-agentic-units/ipybridge/observability"

const EventCall observability.EventType = "surface.call"
