package correlate

import "github.com/tailored-agentic-units/ipybridge/messaging"

// Outcome is what a continuation receives: a reply, or the error that ended
// the wait.
type Outcome struct {
	Reply *messaging.Reply
	Err   error
}

type pendingKind int

const (
	kindContinuation pendingKind = iota
	kindIgnore
	kindCallback
)

// Pending is the action taken when a reply arrives. Exactly one of the
// constructors below produces it.
type Pending struct {
	kind     pendingKind
	ch       chan<- Outcome
	callback func(*messaging.Reply, error)
}

// Continuation delivers the outcome on ch. The channel must have room for
// one value; the table never blocks on it.
func Continuation(ch chan<- Outcome) Pending {
	return Pending{kind: kindContinuation, ch: ch}
}

// Ignore consumes the reply without doing anything.
func Ignore() Pending {
	return Pending{kind: kindIgnore}
}

// Callback runs fn on the table's Poster with the reply or error.
func Callback(fn func(*messaging.Reply, error)) Pending {
	return Pending{kind: kindCallback, callback: fn}
}

func (p Pending) String() string {
	switch p.kind {
	case kindContinuation:
		return "continuation"
	case kindIgnore:
		return "ignore"
	default:
		return "callback"
	}
}
