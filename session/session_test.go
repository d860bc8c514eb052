package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/ipybridge/config"
	"github.com/tailored-agentic-units/ipybridge/foreground"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/session"
	"github.com/tailored-agentic-units/ipybridge/transport"
	"github.com/tailored-agentic-units/ipybridge/transport/mock"
)

type rendered struct {
	mu    sync.Mutex
	types []string
}

func (r *rendered) handle(ctx context.Context, b *messaging.Broadcast) error {
	r.mu.Lock()
	r.types = append(r.types, b.RawType)
	r.mu.Unlock()
	return nil
}

func (r *rendered) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func newSession(t *testing.T, handler mock.Handler, input session.InputFunc) (*session.Session, *mock.Transport, *rendered) {
	t.Helper()

	loop := foreground.New()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	k := mock.New(handler)
	s := session.New(k, loop, session.DefaultConfig())
	r := &rendered{}
	s.Start(r.handle, input)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, k, r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_InvokeResolves(t *testing.T) {
	s, _, _ := newSession(t, mock.Echo, nil)

	reply, err := s.Invoke(context.Background(), messaging.NewKernelInfo(), time.Second)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if reply.Type != "kernel_info_reply" {
		t.Errorf("got reply type %q, want kernel_info_reply", reply.Type)
	}

	var info messaging.KernelInfo
	if err := reply.Decode(&info); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if info.LanguageInfo.Name != mock.EchoLanguage {
		t.Errorf("got language %q, want %q", info.LanguageInfo.Name, mock.EchoLanguage)
	}
	if got := s.Metrics().Correlation.Pending; got != 0 {
		t.Errorf("got %d pending, want 0", got)
	}
}

func TestSession_InvokeTimeout(t *testing.T) {
	s, k, _ := newSession(t, nil, nil)

	req := messaging.NewComplete("pr", 2)
	_, err := s.Invoke(context.Background(), req, 20*time.Millisecond)
	if !errors.Is(err, session.ErrReplyTimeout) {
		t.Fatalf("got error %v, want ErrReplyTimeout", err)
	}

	// the late reply has nobody waiting and is dropped
	if err := k.Reply(req.ID, "complete_reply", messaging.CompleteReply{Status: "ok"}); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	waitFor(t, "unexpected reply", func() bool {
		return s.Metrics().Correlation.Unexpected == 1
	})

	m := s.Metrics().Correlation
	if m.Forgotten != 1 {
		t.Errorf("got %d forgotten, want 1", m.Forgotten)
	}
	if m.Resolved != 0 {
		t.Errorf("got %d resolved, want 0", m.Resolved)
	}
}

func TestSession_InvokeCancelled(t *testing.T) {
	s, _, _ := newSession(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Invoke(ctx, messaging.NewKernelInfo(), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got error %v, want context.DeadlineExceeded", err)
	}
	if got := s.Metrics().Correlation.Pending; got != 0 {
		t.Errorf("got %d pending, want 0", got)
	}
}

func TestSession_RepliesOutOfOrder(t *testing.T) {
	s, k, _ := newSession(t, nil, nil)

	const n = 8
	reqs := make([]*messaging.Request, n)
	got := make([]int, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		reqs[i] = messaging.NewComplete("x", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := s.Invoke(context.Background(), reqs[i], 2*time.Second)
			if err != nil {
				errs[i] = err
				return
			}
			var c messaging.CompleteReply
			errs[i] = reply.Decode(&c)
			got[i] = c.CursorEnd
		}()
	}

	waitFor(t, "registration", func() bool {
		return s.Metrics().Correlation.Pending == n
	})
	for i := n - 1; i >= 0; i-- {
		content := messaging.CompleteReply{Status: "ok", CursorEnd: i}
		if err := k.Reply(reqs[i].ID, "complete_reply", content); err != nil {
			t.Fatalf("Reply failed: %v", err)
		}
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Errorf("request %d: %v", i, errs[i])
			continue
		}
		if got[i] != i {
			t.Errorf("request %d: got reply for %d", i, got[i])
		}
	}
	if m := s.Metrics().Correlation; m.Resolved != n || m.Unexpected != 0 {
		t.Errorf("got %d resolved and %d unexpected, want %d and 0", m.Resolved, m.Unexpected, n)
	}
}

func TestSession_DisconnectFailsWaiters(t *testing.T) {
	s, k, _ := newSession(t, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Invoke(context.Background(), messaging.NewKernelInfo(), 0)
		errc <- err
	}()

	waitFor(t, "registration", func() bool {
		return s.Metrics().Correlation.Pending == 1
	})
	k.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, transport.ErrDisconnected) {
			t.Errorf("got error %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}

	if s.Alive(context.Background()) {
		t.Error("session still alive after disconnect")
	}
	select {
	case <-s.Disconnected():
	default:
		t.Error("Disconnected not closed")
	}
}

func TestSession_CloseFailsWaiters(t *testing.T) {
	s, _, _ := newSession(t, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Invoke(context.Background(), messaging.NewKernelInfo(), 0)
		errc <- err
	}()

	waitFor(t, "registration", func() bool {
		return s.Metrics().Correlation.Pending == 1
	})
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, session.ErrClosed) {
			t.Errorf("got error %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}

	if _, err := s.Invoke(context.Background(), messaging.NewKernelInfo(), 0); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Invoke after Close: got %v, want ErrClosed", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSession_BroadcastOrder(t *testing.T) {
	s, _, r := newSession(t, mock.Echo, nil)

	if _, err := s.Invoke(context.Background(), messaging.NewExecute("1+1", false), time.Second); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	want := []string{"status", "execute_input", "execute_result", "status"}
	waitFor(t, "broadcasts", func() bool { return s.Metrics().Dispatch.Handled == int64(len(want)) })

	got := r.snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d broadcasts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("broadcast %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSession_Fire(t *testing.T) {
	s, k, _ := newSession(t, mock.Echo, nil)

	if err := s.Fire(context.Background(), messaging.NewExecute("x = 1", true)); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	waitFor(t, "reply", func() bool { return s.Metrics().Correlation.Resolved == 1 })

	if got := s.Metrics().Correlation.Unexpected; got != 0 {
		t.Errorf("got %d unexpected, want 0", got)
	}
	if got := len(k.RequestsOf(messaging.KindExecute)); got != 1 {
		t.Errorf("got %d execute requests, want 1", got)
	}
}

func TestSession_NotifyRunsOnLoop(t *testing.T) {
	s, _, _ := newSession(t, mock.Echo, nil)

	done := make(chan string, 1)
	err := s.Notify(context.Background(), messaging.NewInspect("print", 0), func(r *messaging.Reply, err error) {
		if err != nil {
			done <- err.Error()
			return
		}
		done <- r.Type
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case got := <-done:
		if got != "inspect_reply" {
			t.Errorf("got %q, want inspect_reply", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestSession_InputStale(t *testing.T) {
	type prompt struct {
		req  *messaging.InputRequest
		mark uint64
	}
	prompts := make(chan prompt, 1)

	s, _, r := newSession(t, mock.Echo, func(ctx context.Context, req *messaging.InputRequest, mark uint64) {
		prompts <- prompt{req, mark}
	})

	if err := s.Fire(context.Background(), messaging.NewExecute("input('name: ')", false)); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	var p prompt
	select {
	case p = <-prompts:
	case <-time.After(2 * time.Second):
		t.Fatal("no input request")
	}
	if p.req.Prompt != "name: " {
		t.Errorf("got prompt %q, want %q", p.req.Prompt, "name: ")
	}
	if s.Stale(p.mark) {
		t.Fatal("fresh input request reported stale")
	}

	if err := s.Send(context.Background(), messaging.NewInputReply("ada")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, "execute reply", func() bool { return s.Metrics().Correlation.Resolved == 1 })

	if !s.Stale(p.mark) {
		t.Error("answered input request not stale after reply")
	}
	waitFor(t, "result", func() bool {
		for _, typ := range r.snapshot() {
			if typ == "execute_result" {
				return true
			}
		}
		return false
	})
}

func TestSession_StatusAndLiveness(t *testing.T) {
	s, k, _ := newSession(t, mock.Echo, nil)
	ctx := context.Background()

	s.SetStatus("busy")
	if got := s.Status(); got != "busy" {
		t.Errorf("got status %q, want busy", got)
	}

	if !s.Alive(ctx) {
		t.Fatal("new session not alive")
	}
	s.MarkDead()
	if s.Alive(ctx) {
		t.Error("alive after MarkDead")
	}

	if err := s.Restart(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if !s.Alive(ctx) {
		t.Error("not alive after Restart")
	}
	if k.Restarts() != 1 {
		t.Errorf("got %d restarts, want 1", k.Restarts())
	}

	k.SetAlive(false)
	if s.Alive(ctx) {
		t.Error("alive while kernel process is down")
	}

	if s.Terminated() {
		t.Error("terminated before Shutdown")
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !s.Terminated() {
		t.Error("not terminated after Shutdown")
	}
}

func TestSession_Serial(t *testing.T) {
	a, _, _ := newSession(t, nil, nil)
	b, _, _ := newSession(t, nil, nil)

	if b.Serial() <= a.Serial() {
		t.Errorf("serials not increasing: %d then %d", a.Serial(), b.Serial())
	}
	if a.KernelID() == b.KernelID() {
		t.Error("sessions share a kernel id")
	}
}

func TestConfig_Merge(t *testing.T) {
	tests := []struct {
		name        string
		source      session.Config
		wantReply   time.Duration
		wantExecute time.Duration
	}{
		{
			name:      "empty keeps defaults",
			wantReply: 30 * time.Second,
		},
		{
			name:        "overrides",
			source:      session.Config{ReplyTimeout: config.Duration(time.Second), ExecuteTimeout: config.Duration(time.Minute)},
			wantReply:   time.Second,
			wantExecute: time.Minute,
		},
		{
			name:      "negative disables",
			source:    session.Config{ReplyTimeout: config.Duration(-1)},
			wantReply: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := session.DefaultConfig()
			cfg.Merge(&tt.source)

			if got := cfg.ReplyTimeout.Std(); got != tt.wantReply {
				t.Errorf("got reply timeout %v, want %v", got, tt.wantReply)
			}
			if got := cfg.ExecuteTimeout.Std(); got != tt.wantExecute {
				t.Errorf("got execute timeout %v, want %v", got, tt.wantExecute)
			}
		})
	}
}
