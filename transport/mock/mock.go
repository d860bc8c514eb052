// Package mock is an in-memory kernel for tests.
//
// A Transport runs requests through a Handler on its own kernel goroutine,
// one at a time in arrival order, the way a real kernel's shell channel
// does. Handlers and tests push replies, broadcasts and input requests onto
// the transport's streams. Echo is a ready-made handler that behaves enough
// like IPython to drive the whole bridge.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/transport"
)

// ErrInterrupted is returned by RequestInput when the kernel is interrupted
// while waiting for stdin.
var ErrInterrupted = errors.New("kernel interrupted")

// Handler processes one request on the kernel goroutine.
type Handler func(ctx context.Context, k *Transport, req *messaging.Request)

type Transport struct {
	id      string
	handler Handler

	replies    *transport.Stream[*messaging.Reply]
	broadcasts *transport.Stream[*messaging.Broadcast]
	inputs     *transport.Stream[*messaging.InputRequest]

	queue *transport.Stream[*messaging.Request]
	stdin chan string
	intr  chan struct{}

	mu         sync.Mutex
	requests   []*messaging.Request
	restartErr error

	alive      atomic.Bool
	gone       atomic.Bool
	executions atomic.Int32
	interrupts atomic.Int32
	restarts   atomic.Int32
	shutdowns  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New starts an in-memory kernel. A nil handler records requests and never
// answers.
func New(handler Handler) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:         uuid.Must(uuid.NewV7()).String(),
		handler:    handler,
		replies:    transport.NewStream[*messaging.Reply](transport.DefaultBufferSize),
		broadcasts: transport.NewStream[*messaging.Broadcast](transport.DefaultBufferSize),
		inputs:     transport.NewStream[*messaging.InputRequest](transport.DefaultBufferSize),
		queue:      transport.NewStream[*messaging.Request](transport.DefaultBufferSize),
		stdin:      make(chan string, 1),
		intr:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	t.alive.Store(true)

	go t.kernelLoop()
	return t
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Send(ctx context.Context, req *messaging.Request) (string, error) {
	if t.replies.IsClosed() {
		return "", transport.ErrDisconnected
	}

	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	if req.Kind == messaging.KindInputReply {
		if c, ok := req.Content.(messaging.InputReply); ok {
			select {
			case t.stdin <- c.Value:
			default:
			}
		}
		return req.ID, nil
	}

	if err := t.queue.Send(ctx, req); err != nil {
		return "", transport.ErrDisconnected
	}
	return req.ID, nil
}

func (t *Transport) Replies() *transport.Stream[*messaging.Reply] { return t.replies }
func (t *Transport) Broadcasts() *transport.Stream[*messaging.Broadcast] { return t.broadcasts }
func (t *Transport) Inputs() *transport.Stream[*messaging.InputRequest] { return t.inputs }
func (t *Transport) Alive(ctx context.Context) bool { return t.alive.Load() }

func (t *Transport) Interrupt(ctx context.Context) error {
	t.interrupts.Add(1)
	select {
	case t.intr <- struct{}{}:
	default:
	}
	return nil
}

// Restart revives the kernel. A kernel that was shut down cannot be
// restarted.
func (t *Transport) Restart(ctx context.Context) error {
	if t.gone.Load() {
		return fmt.Errorf("failed to restart kernel %s: %w", t.id, transport.ErrKernelGone)
	}
	t.mu.Lock()
	err := t.restartErr
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.restarts.Add(1)
	t.alive.Store(true)
	return nil
}

func (t *Transport) Shutdown(ctx context.Context) error {
	t.shutdowns.Add(1)
	t.alive.Store(false)
	t.gone.Store(true)
	return nil
}

// Close disconnects: all streams close and the kernel goroutine exits.
func (t *Transport) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.queue.Close()
		<-t.done
		t.replies.Close()
		t.broadcasts.Close()
		t.inputs.Close()
	})
	return nil
}

// Reply pushes a shell reply for parentID.
func (t *Transport) Reply(parentID, msgType string, content any) error {
	r, err := messaging.NewReply(parentID, msgType, content)
	if err != nil {
		return err
	}
	return t.replies.Send(t.ctx, r)
}

// Broadcast pushes an iopub message.
func (t *Transport) Broadcast(rawType, parentID string, content any) error {
	b, err := messaging.NewBroadcast(rawType, parentID, content)
	if err != nil {
		return err
	}
	return t.broadcasts.Send(t.ctx, b)
}

// RequestInput asks the bridge for a line of stdin and waits for the
// input_reply.
func (t *Transport) RequestInput(ctx context.Context, parentID, prompt string) (string, error) {
	// a reply left over from an earlier request is stale
	select {
	case <-t.stdin:
	default:
	}
	select {
	case <-t.intr:
	default:
	}

	req := &messaging.InputRequest{
		ID:       uuid.Must(uuid.NewV7()).String(),
		ParentID: parentID,
		Prompt:   prompt,
	}
	if err := t.inputs.Send(ctx, req); err != nil {
		return "", err
	}

	select {
	case value := <-t.stdin:
		return value, nil
	case <-t.intr:
		return "", ErrInterrupted
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// LoseHeartbeat marks the kernel dead and emits a heartbeat-lost broadcast.
func (t *Transport) LoseHeartbeat() error {
	t.alive.Store(false)
	return t.broadcasts.Send(t.ctx, messaging.HeartbeatLost())
}

// FailRestart makes every later Restart return err.
func (t *Transport) FailRestart(err error) {
	t.mu.Lock()
	t.restartErr = err
	t.mu.Unlock()
}

// SetAlive overrides the liveness flag.
func (t *Transport) SetAlive(alive bool) {
	t.alive.Store(alive)
}

// Requests returns a copy of every request sent so far.
func (t *Transport) Requests() []*messaging.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*messaging.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// RequestsOf returns the sent requests of one kind.
func (t *Transport) RequestsOf(kind messaging.Kind) []*messaging.Request {
	var out []*messaging.Request
	for _, r := range t.Requests() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (t *Transport) Interrupts() int { return int(t.interrupts.Load()) }
func (t *Transport) Restarts() int { return int(t.restarts.Load()) }
func (t *Transport) Shutdowns() int { return int(t.shutdowns.Load()) }

func (t *Transport) kernelLoop() {
	defer close(t.done)
	for {
		req, err := t.queue.Receive(t.ctx)
		if err != nil {
			return
		}
		if t.handler != nil {
			t.handler(t.ctx, t, req)
		}
	}
}

// Dialer hands out mock transports.
type Dialer struct {
	Handler Handler
	// Err, when set, fails every Dial.
	Err error

	mu    sync.Mutex
	dials [][]string
	last  *Transport
}

func (d *Dialer) Dial(ctx context.Context, argv []string) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, append([]string(nil), argv...))
	if d.Err != nil {
		return nil, d.Err
	}
	d.last = New(d.Handler)
	return d.last, nil
}

// Dials returns the argv of every Dial call.
func (d *Dialer) Dials() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.dials...)
}

// Last returns the most recently dialed transport.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
