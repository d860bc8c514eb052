package session

import "errors"

var (
	// ErrReplyTimeout is returned by Invoke when no reply arrives in time.
	ErrReplyTimeout = errors.New("reply timed out")

	// ErrClosed is delivered to calls still waiting when the session is
	// closed, and returned by calls made after.
	ErrClosed = errors.New("session closed")
)
