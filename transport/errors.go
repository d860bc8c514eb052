package transport

import "errors"

var (
	// ErrDisconnected is returned when the connection to the kernel is gone.
	ErrDisconnected = errors.New("transport disconnected")

	// ErrKernelGone is returned by kernel control calls when the kernel
	// process no longer exists, for example after Shutdown.
	ErrKernelGone = errors.New("kernel not found")

	// ErrClosed is returned by Stream.Receive once the stream is closed and
	// drained.
	ErrClosed = errors.New("stream closed")
)
