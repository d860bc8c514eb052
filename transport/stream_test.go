package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/ipybridge/transport"
)

func TestStream_SendReceive(t *testing.T) {
	s := transport.NewStream[int](4)
	ctx := context.Background()

	for i := range 3 {
		if err := s.Send(ctx, i); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if s.QueueLength() != 3 {
		t.Errorf("got QueueLength %d, want 3", s.QueueLength())
	}
	for i := range 3 {
		got, err := s.Receive(ctx)
		if err != nil || got != i {
			t.Errorf("Receive() = (%d, %v), want (%d, nil)", got, err, i)
		}
	}
}

func TestStream_DrainAfterClose(t *testing.T) {
	s := transport.NewStream[string](4)
	ctx := context.Background()
	s.Send(ctx, "a")
	s.Send(ctx, "b")
	s.Close()
	s.Close()

	if !s.IsClosed() {
		t.Error("IsClosed should be true")
	}
	if err := s.Send(ctx, "c"); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close: got %v, want ErrClosed", err)
	}

	for _, want := range []string{"a", "b"} {
		got, err := s.Receive(ctx)
		if err != nil || got != want {
			t.Errorf("Receive() = (%q, %v), want (%q, nil)", got, err, want)
		}
	}
	if _, err := s.Receive(ctx); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestStream_CloseUnblocksReceiveAndSend(t *testing.T) {
	s := transport.NewStream[int](1)
	ctx := context.Background()
	s.Send(ctx, 1)

	sendErr := make(chan error, 1)
	go func() { sendErr <- s.Send(ctx, 2) }()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-sendErr:
		if !errors.Is(err, transport.ErrClosed) {
			t.Errorf("blocked Send: got %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send still blocked after Close")
	}
}

func TestStream_ReceiveContext(t *testing.T) {
	s := transport.NewStream[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := s.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
	if _, ok := s.TryReceive(); ok {
		t.Error("TryReceive on empty stream returned ok")
	}
}
