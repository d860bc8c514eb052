package correlate

import "errors"

var (
	// ErrDuplicateID is returned by Register when the identifier already has
	// a pending call. Identifiers come from UUIDv7, so this indicates a bug.
	ErrDuplicateID = errors.New("duplicate pending identifier")

	// ErrUnexpectedReply is attached to the event emitted when a reply
	// arrives for an identifier with no pending call.
	ErrUnexpectedReply = errors.New("unexpected reply")
)
