package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the wire msg_type of an outbound request.
type Kind string

const (
	KindExecute    Kind = "execute_request"
	KindComplete   Kind = "complete_request"
	KindInspect    Kind = "inspect_request"
	KindInterrupt  Kind = "interrupt_request"
	KindInputReply Kind = "input_reply"
	KindKernelInfo Kind = "kernel_info_request"
	KindShutdown   Kind = "shutdown_request"
)

// Channel names used by the kernel protocol.
const (
	ChannelShell   = "shell"
	ChannelControl = "control"
	ChannelStdin   = "stdin"
	ChannelIOPub   = "iopub"
)

// Channel returns the kernel channel a request of this kind travels on.
func (k Kind) Channel() string {
	switch k {
	case KindInterrupt, KindShutdown:
		return ChannelControl
	case KindInputReply:
		return ChannelStdin
	default:
		return ChannelShell
	}
}

// Request is an outbound kernel message.
type Request struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   any       `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRequest creates a request with a fresh UUIDv7 identifier.
func NewRequest(kind Kind, content any) *Request {
	return &Request{
		ID:        generateID(),
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewExecute builds an execute_request. Silent requests produce no
// broadcasts and do not increment the execution counter.
func NewExecute(code string, silent bool) *Request {
	return NewRequest(KindExecute, ExecuteRequest{
		Code:         code,
		Silent:       silent,
		StoreHistory: !silent,
		AllowStdin:   true,
	})
}

// NewComplete builds a complete_request for code with the cursor at pos.
func NewComplete(code string, pos int) *Request {
	return NewRequest(KindComplete, CompleteRequest{Code: code, CursorPos: pos})
}

// NewInspect builds an inspect_request for word. The cursor is placed at the
// end of the word.
func NewInspect(word string, level int) *Request {
	return NewRequest(KindInspect, InspectRequest{
		Code:        word,
		CursorPos:   len(word),
		DetailLevel: level,
	})
}

func NewKernelInfo() *Request {
	return NewRequest(KindKernelInfo, struct{}{})
}

func NewInputReply(value string) *Request {
	return NewRequest(KindInputReply, InputReply{Value: value})
}

func NewShutdown(restart bool) *Request {
	return NewRequest(KindShutdown, ShutdownRequest{Restart: restart})
}

func NewInterrupt() *Request {
	return NewRequest(KindInterrupt, struct{}{})
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
