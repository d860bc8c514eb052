// Package correlate matches inbound replies to the requests waiting on them.
//
// A Table maps request identifiers to a Pending action. Resolve removes the
// entry and dispatches it in one step, so an entry is acted on at most once
// even when a reply races a timeout. Replies with no entry are observed and
// dropped without touching other entries.
package correlate

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
)

// Poster schedules fn to run on the foreground context.
type Poster interface {
	Post(fn func())
}

// Option configures a Table.
type Option func(*Table)

// WithObserver sets the observer for table events.
func WithObserver(o observability.Observer) Option {
	return func(t *Table) { t.observer = o }
}

// Table is safe for concurrent use. Register is typically called from a
// command goroutine while Resolve runs on the transport's reader.
type Table struct {
	entries map[string]Pending
	mu      sync.Mutex

	poster   Poster
	observer observability.Observer
	metrics  *Metrics
}

// New creates a Table. Callback entries are posted to poster.
func New(poster Poster, opts ...Option) *Table {
	t := &Table{
		entries:  make(map[string]Pending),
		poster:   poster,
		observer: observability.NoOpObserver{},
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register records p for id.
func (t *Table) Register(id string, p Pending) error {
	t.mu.Lock()
	_, exists := t.entries[id]
	if !exists {
		t.entries[id] = p
	}
	t.mu.Unlock()

	if exists {
		err := fmt.Errorf("%w: %s", ErrDuplicateID, id)
		t.emit(EventDuplicateID, observability.LevelError, "correlate.Register", map[string]any{
			"msg_id": id,
			"error":  err,
		})
		return err
	}

	t.metrics.RecordRegistered()
	t.emit(EventRegistered, observability.LevelVerbose, "correlate.Register", map[string]any{
		"msg_id": id,
		"action": p.String(),
	})
	return nil
}

// Resolve removes the entry for id and acts on it. It reports false when no
// entry exists, in which case the reply is dropped.
func (t *Table) Resolve(id string, reply *messaging.Reply) bool {
	p, ok := t.take(id)
	if !ok {
		t.metrics.RecordUnexpected()
		data := map[string]any{
			"msg_id": id,
			"error":  ErrUnexpectedReply,
		}
		if reply != nil {
			data["msg_type"] = reply.Type
		}
		t.emit(EventUnexpectedReply, observability.LevelWarning, "correlate.Resolve", data)
		return false
	}

	t.metrics.RecordResolved()
	t.emit(EventResolved, observability.LevelVerbose, "correlate.Resolve", map[string]any{
		"msg_id": id,
		"action": p.String(),
	})
	t.deliver(p, reply, nil)
	return true
}

// Forget drops the entry for id without acting on it. Used when a waiter
// gives up; a reply arriving later is then unexpected.
func (t *Table) Forget(id string) bool {
	_, ok := t.take(id)
	if ok {
		t.metrics.RecordForgotten()
	}
	return ok
}

// FailAll removes every entry and delivers err to each. It returns the
// number of entries failed.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]Pending)
	t.mu.Unlock()

	for _, p := range entries {
		t.deliver(p, nil, err)
	}

	if n := len(entries); n > 0 {
		t.metrics.RecordFailed(n)
		t.emit(EventFailed, observability.LevelInfo, "correlate.FailAll", map[string]any{
			"count": n,
			"error": err,
		})
	}
	return len(entries)
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) Metrics() MetricsSnapshot {
	return t.metrics.Snapshot()
}

func (t *Table) take(id string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return p, ok
}

func (t *Table) deliver(p Pending, reply *messaging.Reply, err error) {
	switch p.kind {
	case kindContinuation:
		// buffered by contract; a full channel means the waiter already
		// received an outcome, which take() rules out
		select {
		case p.ch <- Outcome{Reply: reply, Err: err}:
		default:
		}
	case kindCallback:
		fn := p.callback
		t.poster.Post(func() { fn(reply, err) })
	}
}

func (t *Table) emit(eventType observability.EventType, level observability.Level, source string, data map[string]any) {
	t.observer.OnEvent(context.Background(), observability.NewEvent(eventType, level, source, data))
}
