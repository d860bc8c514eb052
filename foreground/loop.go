// Package foreground provides the single goroutine on which every
// editor-visible mutation runs.
//
// Transport readers and callbacks never touch the display directly; they
// Post a func to the Loop, which runs posted funcs one at a time in FIFO
// order. Post never blocks, so a slow display cannot stall a reader.
package foreground

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/ipybridge/observability"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("foreground loop stopped")

const EventTaskPanic observability.EventType = "foreground.task.panic"

// Option configures a Loop.
type Option func(*Loop)

// WithObserver sets the observer for task panics.
func WithObserver(o observability.Observer) Option {
	return func(l *Loop) { l.observer = o }
}

type Loop struct {
	mu    sync.Mutex
	queue []func()

	wake chan struct{}
	done chan struct{}
	once sync.Once

	observer observability.Observer
}

func New(opts ...Option) *Loop {
	l := &Loop{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Run processes posted funcs until ctx is cancelled. Funcs still queued at
// that point are discarded. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.run(ctx, fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) run(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.observer.OnEvent(ctx, observability.NewEvent(
				EventTaskPanic,
				observability.LevelError,
				"foreground.Run",
				map[string]any{"error": fmt.Sprint(r)},
			))
		}
	}()
	fn()
}
