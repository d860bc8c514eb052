package session

import (
	"github.com/tailored-agentic-units/ipybridge/correlate"
	"github.com/tailored-agentic-units/ipybridge/dispatch"
)

// Metrics is a point-in-time view of a session's counters.
type Metrics struct {
	Serial      Serial
	Correlation correlate.MetricsSnapshot
	Dispatch    dispatch.MetricsSnapshot
}
