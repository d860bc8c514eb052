// Package transport defines the boundary between the bridge and a running
// kernel.
//
// A Transport sends requests and exposes three inbound streams: shell
// replies, iopub broadcasts and stdin input requests. Each stream is filled
// by the transport's own reader goroutine and closed exactly once when the
// connection ends, which is how consumers learn of a disconnect.
//
// Implementations live in subpackages: jupyter talks to a Jupyter server
// over REST and websocket; mock is an in-memory kernel for tests.
package transport

import (
	"context"

	"github.com/tailored-agentic-units/ipybridge/messaging"
)

// DefaultBufferSize is the stream capacity used by the bundled transports.
const DefaultBufferSize = 256

type Transport interface {
	// ID identifies the kernel this transport is attached to.
	ID() string

	// Send writes req to the kernel and returns its message identifier.
	Send(ctx context.Context, req *messaging.Request) (string, error)

	Replies() *Stream[*messaging.Reply]
	Broadcasts() *Stream[*messaging.Broadcast]
	Inputs() *Stream[*messaging.InputRequest]

	// Alive reports whether the kernel process is running.
	Alive(ctx context.Context) bool

	Interrupt(ctx context.Context) error
	Restart(ctx context.Context) error
	// Shutdown stops the kernel process.
	Shutdown(ctx context.Context) error

	// Close releases the connection without stopping the kernel.
	Close() error
}

// Dialer connects to a kernel described by an argument vector, in the same
// form a user types after a connect command.
type Dialer interface {
	Dial(ctx context.Context, argv []string) (Transport, error)
}
