package bridge

import "errors"

var (
	// ErrNotConnected is returned by kernel operations before Connect.
	ErrNotConnected = errors.New("not connected to a kernel")

	// ErrKernelDead is returned by Run when the kernel is not running and
	// the user declined to restart it.
	ErrKernelDead = errors.New("kernel is dead")

	// ErrRestarted is returned by Run when the kernel was restarted instead
	// of running the code.
	ErrRestarted = errors.New("kernel restarted; code was not run")

	// ErrNoInput is returned by a Prompter that cannot ask the user.
	ErrNoInput = errors.New("no input available")
)
