// Package session owns one live kernel connection.
//
// A Session consumes the transport's three inbound streams on goroutines of
// its own. Replies resolve entries in a correlation table; broadcasts are
// posted to the foreground loop and rendered through a dispatcher, so
// rendering never runs concurrently with itself; input requests are handed
// to the caller's InputFunc together with a staleness mark.
//
// Commands send through Invoke when they need the reply, Fire when they do
// not, and Notify when the reply should be handled later on the foreground
// loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/ipybridge/correlate"
	"github.com/tailored-agentic-units/ipybridge/dispatch"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
	"github.com/tailored-agentic-units/ipybridge/transport"
)

// Poster runs funcs on the foreground context.
type Poster interface {
	Post(fn func())
}

// InputFunc answers a kernel input request. mark is passed back to Stale
// to check whether the request is still current before replying.
type InputFunc func(ctx context.Context, req *messaging.InputRequest, mark uint64)

// Option configures a Session.
type Option func(*Session)

func WithObserver(o observability.Observer) Option {
	return func(s *Session) { s.observer = o }
}

type Session struct {
	serial    Serial
	transport transport.Transport
	poster    Poster
	config    Config
	observer  observability.Observer

	table      *correlate.Table
	dispatcher *dispatch.Dispatcher[*messaging.Broadcast]

	alive      atomic.Bool
	gone       atomic.Bool
	terminated atomic.Bool
	inbound    atomic.Uint64

	statusMu sync.Mutex
	status   string

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New wraps a connected transport. Nothing is consumed until Start.
func New(t transport.Transport, poster Poster, cfg Config, opts ...Option) *Session {
	s := &Session{
		serial:    nextSerial(),
		transport: t,
		poster:    poster,
		config:    cfg,
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.table = correlate.New(poster, correlate.WithObserver(s.observer))
	s.alive.Store(true)
	return s
}

// Serial returns the process-local session number.
func (s *Session) Serial() Serial {
	return s.serial
}

// KernelID returns the identifier of the attached kernel.
func (s *Session) KernelID() string {
	return s.transport.ID()
}

func (s *Session) Config() Config {
	return s.config
}

// Start launches the stream consumers. render handles every broadcast on
// the foreground loop; input answers stdin requests and may be nil, in
// which case they are ignored. Start is effective once.
func (s *Session) Start(render dispatch.Handler[*messaging.Broadcast], input InputFunc) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.dispatcher = dispatch.New(render, dispatch.WithObserver[*messaging.Broadcast](s.observer))

		s.wg.Add(3)
		go s.consumeReplies(ctx)
		go s.consumeBroadcasts(ctx)
		go s.consumeInputs(ctx, input)

		s.emit(EventStarted, observability.LevelInfo, "session.Start", map[string]any{
			"serial": s.serial,
			"kernel": s.transport.ID(),
		})
	})
}

// Invoke sends req and waits for its reply. A timeout of zero or less
// waits until ctx is done. Once Invoke gives up, a reply that arrives later
// is dropped as unexpected.
func (s *Session) Invoke(ctx context.Context, req *messaging.Request, timeout time.Duration) (*messaging.Reply, error) {
	ch := make(chan correlate.Outcome, 1)
	if err := s.register(req.ID, correlate.Continuation(ch)); err != nil {
		return nil, err
	}
	if err := s.send(ctx, req); err != nil {
		s.table.Forget(req.ID)
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-ch:
		return out.Reply, out.Err
	case <-ctx.Done():
		if !s.table.Forget(req.ID) {
			out := <-ch
			return out.Reply, out.Err
		}
		return nil, fmt.Errorf("%s cancelled: %w", req.Kind, ctx.Err())
	case <-expired:
		if !s.table.Forget(req.ID) {
			out := <-ch
			return out.Reply, out.Err
		}
		s.emit(EventReplyTimeout, observability.LevelWarning, "session.Invoke", map[string]any{
			"msg_id":  req.ID,
			"kind":    string(req.Kind),
			"timeout": timeout.String(),
		})
		return nil, fmt.Errorf("%s: %w after %s", req.Kind, ErrReplyTimeout, timeout)
	}
}

// Fire sends req and discards its reply.
func (s *Session) Fire(ctx context.Context, req *messaging.Request) error {
	if err := s.register(req.ID, correlate.Ignore()); err != nil {
		return err
	}
	if err := s.send(ctx, req); err != nil {
		s.table.Forget(req.ID)
		return err
	}
	return nil
}

// Notify sends req and posts fn with its reply to the foreground loop. fn
// also runs, with an error, if the session ends first.
func (s *Session) Notify(ctx context.Context, req *messaging.Request, fn func(*messaging.Reply, error)) error {
	if err := s.register(req.ID, correlate.Callback(fn)); err != nil {
		return err
	}
	if err := s.send(ctx, req); err != nil {
		s.table.Forget(req.ID)
		return err
	}
	return nil
}

// Send writes a request that has no reply, such as an input reply.
func (s *Session) Send(ctx context.Context, req *messaging.Request) error {
	if s.gone.Load() {
		return ErrClosed
	}
	return s.send(ctx, req)
}

// Stale reports whether any reply or input request has arrived since mark
// was issued.
func (s *Session) Stale(mark uint64) bool {
	return s.inbound.Load() != mark
}

// Alive reports whether the kernel is believed to be running. A session
// marked dead stays dead until MarkAlive; a disconnected one stays dead.
func (s *Session) Alive(ctx context.Context) bool {
	if s.gone.Load() || !s.alive.Load() {
		return false
	}
	select {
	case <-s.Disconnected():
		return false
	default:
	}
	return s.transport.Alive(ctx)
}

func (s *Session) MarkDead() {
	s.alive.Store(false)
}

func (s *Session) MarkAlive() {
	s.alive.Store(true)
}

func (s *Session) Status() string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Session) SetStatus(status string) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}

// Interrupt asks the kernel to stop the running execution.
func (s *Session) Interrupt(ctx context.Context) error {
	return s.transport.Interrupt(ctx)
}

// Restart restarts the kernel process and marks the session alive.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.transport.Restart(ctx); err != nil {
		return err
	}
	s.MarkAlive()
	return nil
}

// Shutdown stops the kernel process. The connection stays open but the
// kernel cannot be restarted through it.
func (s *Session) Shutdown(ctx context.Context) error {
	if err := s.transport.Shutdown(ctx); err != nil {
		return err
	}
	s.terminated.Store(true)
	s.MarkDead()
	return nil
}

// Terminated reports whether Shutdown stopped the kernel.
func (s *Session) Terminated() bool {
	return s.terminated.Load()
}

// Disconnected is closed once the transport's reply stream has ended.
func (s *Session) Disconnected() <-chan struct{} {
	return s.transport.Replies().Done()
}

// Close stops the consumers, waits for them until ctx is done, then closes
// the transport. Calls still waiting on a reply fail with ErrClosed.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.gone.Store(true)
		if s.cancel != nil {
			s.cancel()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("consumers still running: %w", ctx.Err())
		}

		if err := s.transport.Close(); err != nil {
			s.closeErr = errors.Join(s.closeErr, fmt.Errorf("failed to close transport: %w", err))
		}
		s.table.FailAll(ErrClosed)

		s.emit(EventClosed, observability.LevelInfo, "session.Close", map[string]any{
			"serial": s.serial,
		})
	})
	return s.closeErr
}

func (s *Session) Metrics() Metrics {
	m := Metrics{
		Serial:      s.serial,
		Correlation: s.table.Metrics(),
	}
	if s.dispatcher != nil {
		m.Dispatch = s.dispatcher.Metrics()
	}
	return m
}

func (s *Session) register(id string, p correlate.Pending) error {
	if s.gone.Load() {
		return ErrClosed
	}
	return s.table.Register(id, p)
}

func (s *Session) send(ctx context.Context, req *messaging.Request) error {
	if _, err := s.transport.Send(ctx, req); err != nil {
		return fmt.Errorf("failed to send %s: %w", req.Kind, err)
	}
	return nil
}

func (s *Session) consumeReplies(ctx context.Context) {
	defer s.wg.Done()
	for {
		reply, err := s.transport.Replies().Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				s.disconnected()
			}
			return
		}
		s.inbound.Add(1)
		s.table.Resolve(reply.ParentID, reply)
	}
}

func (s *Session) consumeBroadcasts(ctx context.Context) {
	defer s.wg.Done()
	for {
		b, err := s.transport.Broadcasts().Receive(ctx)
		if err != nil {
			return
		}
		s.poster.Post(func() { s.dispatcher.Submit(ctx, b) })
	}
}

func (s *Session) consumeInputs(ctx context.Context, input InputFunc) {
	defer s.wg.Done()
	for {
		req, err := s.transport.Inputs().Receive(ctx)
		if err != nil {
			return
		}
		mark := s.inbound.Add(1)
		s.emit(EventInputRequest, observability.LevelVerbose, "session.consumeInputs", map[string]any{
			"msg_id":   req.ID,
			"password": req.Password,
		})
		if input != nil {
			input(ctx, req, mark)
		}
	}
}

func (s *Session) disconnected() {
	s.MarkDead()
	n := s.table.FailAll(transport.ErrDisconnected)
	s.emit(EventDisconnected, observability.LevelWarning, "session.consumeReplies", map[string]any{
		"serial": s.serial,
		"failed": n,
	})
}

func (s *Session) emit(eventType observability.EventType, level observability.Level, source string, data map[string]any) {
	s.observer.OnEvent(context.Background(), observability.NewEvent(eventType, level, source, data))
}
