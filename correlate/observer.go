package correlate

import "github.com/tailored-agentic-units/ipybridge/observability"

const (
	EventRegistered      observability.EventType = "correlate.registered"
	EventResolved        observability.EventType = "correlate.resolved"
	EventUnexpectedReply observability.EventType = "correlate.reply.unexpected"
	EventDuplicateID     observability.EventType = "correlate.duplicate"
	EventFailed          observability.EventType = "correlate.failed"
)
