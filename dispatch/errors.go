package dispatch

import "errors"

// ErrHandlerFault wraps any error or panic raised by a handler.
var ErrHandlerFault = errors.New("broadcast handler fault")
