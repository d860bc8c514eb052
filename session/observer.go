package session

import "github.com/tailored-agentic-units/ipybridge/observability"

const (
	EventStarted      observability.EventType = "session.started"
	EventDisconnected observability.EventType = "session.disconnected"
	EventClosed       observability.EventType = "session.closed"
	EventReplyTimeout observability.EventType = "session.reply.timeout"
	EventInputRequest observability.EventType = "session.input.request"
)
