// Package dispatch serializes handling of asynchronously arriving messages.
//
// A Dispatcher owns a FIFO queue and a draining flag. Submit always enqueues;
// the first submitter to find the dispatcher idle becomes the drainer and
// handles messages until the queue is empty. Submits made while a drain is in
// progress, including ones made from inside the handler, are queued and
// handled by that same drain. The handler therefore never runs concurrently
// with itself and never re-enters, and messages are handled in submission
// order.
//
//	d := dispatch.New(renderer.Handle, dispatch.WithObserver(obs))
//	d.Submit(ctx, msg)
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/ipybridge/observability"
)

// Handler processes one message. A returned error or a panic is reported as
// a fault and does not stop the drain.
type Handler[T any] func(ctx context.Context, msg T) error

// Option configures a Dispatcher.
type Option[T any] func(*Dispatcher[T])

// WithObserver sets the observer for fault and drain events.
func WithObserver[T any](o observability.Observer) Option[T] {
	return func(d *Dispatcher[T]) { d.observer = o }
}

type Dispatcher[T any] struct {
	handler Handler[T]

	// mu guards queue and draining only; it is never held across a handler
	// call.
	mu       sync.Mutex
	queue    []T
	draining bool

	observer observability.Observer
	metrics  *Metrics
}

func New[T any](handler Handler[T], opts ...Option[T]) *Dispatcher[T] {
	d := &Dispatcher[T]{
		handler:  handler,
		observer: observability.NoOpObserver{},
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues msg and, if no drain is in progress, drains the queue on
// the calling goroutine.
func (d *Dispatcher[T]) Submit(ctx context.Context, msg T) {
	d.metrics.RecordSubmitted()

	d.mu.Lock()
	d.queue = append(d.queue, msg)
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()

	d.drain(ctx)
}

// Pending returns the number of queued messages not yet handled.
func (d *Dispatcher[T]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Draining reports whether a drain is in progress.
func (d *Dispatcher[T]) Draining() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draining
}

func (d *Dispatcher[T]) Metrics() MetricsSnapshot {
	return d.metrics.Snapshot()
}

func (d *Dispatcher[T]) drain(ctx context.Context) {
	handled := 0
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.draining = false
			d.queue = nil
			d.mu.Unlock()
			break
		}
		msg := d.queue[0]
		var zero T
		d.queue[0] = zero
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.handle(ctx, msg); err != nil {
			d.metrics.RecordFault()
			d.observer.OnEvent(ctx, observability.NewEvent(
				EventHandlerFault,
				observability.LevelError,
				"dispatch.Submit",
				map[string]any{"error": err},
			))
		}
		d.metrics.RecordHandled()
		handled++
	}

	if handled > 1 {
		d.observer.OnEvent(ctx, observability.NewEvent(
			EventDrainDone,
			observability.LevelVerbose,
			"dispatch.Submit",
			map[string]any{"handled": handled},
		))
	}
}

func (d *Dispatcher[T]) handle(ctx context.Context, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFault, r)
		}
	}()

	if herr := d.handler(ctx, msg); herr != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFault, herr)
	}
	return nil
}
