package surface

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/session"
	"github.com/tailored-agentic-units/ipybridge/transport"
)

// toConnectError maps bridge failures onto RPC status codes.
func toConnectError(err error) error {
	code := connect.CodeUnknown
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, bridge.ErrRestarted):
		code = connect.CodeAborted
	case errors.Is(err, bridge.ErrKernelDead),
		errors.Is(err, transport.ErrDisconnected),
		errors.Is(err, transport.ErrKernelGone),
		errors.Is(err, session.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, session.ErrReplyTimeout),
		errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}
	return connect.NewError(code, err)
}
