package transport

import (
	"context"
	"sync"
)

// Stream is a closable, buffered queue of inbound messages. A transport's
// reader goroutine is the only sender; closing happens exactly once when the
// connection goes away. Receivers see every message sent before Close, then
// ErrClosed.
type Stream[T any] struct {
	channel    chan T
	bufferSize int

	done chan struct{}
	once sync.Once
}

func NewStream[T any](bufferSize int) *Stream[T] {
	return &Stream[T]{
		channel:    make(chan T, bufferSize),
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}
}

// Send blocks until the message is queued, ctx ends, or the stream closes.
func (s *Stream[T]) Send(ctx context.Context, message T) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Receive blocks for the next message. Buffered messages are still returned
// after Close; ErrClosed comes once the buffer is empty.
func (s *Stream[T]) Receive(ctx context.Context) (T, error) {
	select {
	case message := <-s.channel:
		return message, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-s.done:
		select {
		case message := <-s.channel:
			return message, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	}
}

func (s *Stream[T]) TryReceive() (T, bool) {
	select {
	case message := <-s.channel:
		return message, true
	default:
		var zero T
		return zero, false
	}
}

// Close marks the stream closed. Safe to call more than once.
func (s *Stream[T]) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Stream[T]) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the stream is closed.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Stream[T]) BufferSize() int {
	return s.bufferSize
}

func (s *Stream[T]) QueueLength() int {
	return len(s.channel)
}
