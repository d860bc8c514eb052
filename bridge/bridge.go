// Package bridge is the command surface an editor drives: connect to a
// kernel, run code, complete, inspect, and control the kernel process.
//
// A Bridge initializes from configuration via New. Functional options
// replace any collaborator for tests or embedding.
//
//	b := bridge.New(cfg, bridge.WithPrompter(p))
//	go b.Loop().Run(ctx)
//	info, err := b.Connect(ctx, []string{"--kernel", "python3"})
//	_, err = b.Run(ctx, "print('hi')", false)
//
// Every command runs on the caller's goroutine and parks there while it
// waits for the kernel. Output reaches the scrollback only through the
// foreground loop, which the caller must run.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/ipybridge/display"
	"github.com/tailored-agentic-units/ipybridge/foreground"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
	"github.com/tailored-agentic-units/ipybridge/render"
	"github.com/tailored-agentic-units/ipybridge/session"
	"github.com/tailored-agentic-units/ipybridge/transport"
	"github.com/tailored-agentic-units/ipybridge/transport/jupyter"
)

const greeting = "ipybridge: Jupyter shell for editors"

// Scrollback is a Sink that can be read back.
type Scrollback interface {
	display.Sink
	LineCount() int
	Cursor() (line, col int)
	Range(from, to int) []display.Line
}

// Completion is the kernel's answer to a completion request. Start and End
// delimit the text the matches replace.
type Completion struct {
	Start   int      `json:"start"`
	End     int      `json:"end"`
	Matches []string `json:"matches"`
}

// Status is a snapshot of the bridge's connection.
type Status struct {
	Connected bool   `json:"connected"`
	Alive     bool   `json:"alive"`
	KernelID  string `json:"kernel_id,omitempty"`
	Serial    uint32 `json:"serial,omitempty"`
	State     string `json:"state,omitempty"`
	Language  string `json:"language,omitempty"`
	Lines     int    `json:"lines"`
}

// Option configures a Bridge after config-driven initialization.
type Option func(*Bridge)

// WithDialer overrides the Jupyter dialer.
func WithDialer(d transport.Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithScrollback overrides the in-memory display buffer.
func WithScrollback(s Scrollback) Option {
	return func(b *Bridge) { b.scrollback = s }
}

// WithLoop overrides the foreground loop.
func WithLoop(l *foreground.Loop) Option {
	return func(b *Bridge) { b.loop = l }
}

// WithPrompter sets how the user is asked questions. The default declines.
func WithPrompter(p Prompter) Option {
	return func(b *Bridge) { b.prompter = p }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(b *Bridge) { b.observer = o }
}

type Bridge struct {
	config     Config
	dialer     transport.Dialer
	scrollback Scrollback
	loop       *foreground.Loop
	prompter   Prompter
	observer   observability.Observer

	// serializes Connect and Close
	connMu sync.Mutex

	mu       sync.Mutex
	session  *session.Session
	argv     []string
	language string
	greeted  bool
}

// New creates a Bridge from configuration. It does not connect.
func New(cfg *Config, opts ...Option) *Bridge {
	b := &Bridge{
		config:   *cfg,
		prompter: DeclinePrompter{},
		observer: observability.NewSlogObserver(slog.Default()),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.loop == nil {
		b.loop = foreground.New(foreground.WithObserver(b.observer))
	}
	if b.scrollback == nil {
		b.scrollback = display.NewBuffer(display.WithANSIHighlight(cfg.Session.Render.Highlight()))
	}
	if b.dialer == nil {
		b.dialer = jupyter.NewDialer(cfg.Jupyter, jupyter.WithObserver(b.observer))
	}
	return b
}

// Loop returns the foreground loop output is rendered on.
func (b *Bridge) Loop() *foreground.Loop {
	return b.loop
}

// Scrollback returns the sink output is rendered into.
func (b *Bridge) Scrollback() Scrollback {
	return b.scrollback
}

func (b *Bridge) Config() Config {
	return b.config
}

// Connect tears down any current session, dials a kernel from argv, waits
// for its kernel info and writes a banner.
func (b *Bridge) Connect(ctx context.Context, argv []string) (*messaging.KernelInfo, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if old := b.detach(); old != nil {
		if err := old.Close(ctx); err != nil {
			b.emit(ctx, EventError, observability.LevelWarning, "bridge.Connect", map[string]any{
				"error": err,
			})
		}
	}

	t, err := b.dialer.Dial(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := session.New(t, b.loop, b.config.Session, session.WithObserver(b.observer))
	r := render.New(b.scrollback, b.config.Session.Render, s, render.WithObserver(b.observer))
	s.Start(r.Handle, b.answerInput(s))

	reply, err := s.Invoke(ctx, messaging.NewKernelInfo(), s.Config().ReplyTimeout.Std())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get kernel info: %w", err), s.Close(ctx))
	}
	var info messaging.KernelInfo
	if err := reply.Decode(&info); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to decode kernel info: %w", err), s.Close(ctx))
	}

	b.mu.Lock()
	first := !b.greeted
	b.greeted = true
	b.session = s
	b.argv = append([]string(nil), argv...)
	b.language = info.LanguageInfo.Name
	b.mu.Unlock()

	if err := b.banner(ctx, &info, first); err != nil {
		return nil, err
	}

	b.emit(ctx, EventConnected, observability.LevelInfo, "bridge.Connect", map[string]any{
		"kernel":   t.ID(),
		"serial":   s.Serial(),
		"language": info.LanguageInfo.Name,
		"version":  kernelVersion(&info),
	})
	return &info, nil
}

// Run executes code. If the kernel is dead the user is asked whether to
// restart it, and the code is not sent either way. Silent runs return as
// soon as the request is written; otherwise Run waits for the execute
// reply and writes any paged output.
func (b *Bridge) Run(ctx context.Context, code string, silent bool) (*messaging.ExecuteReply, error) {
	s, err := b.current()
	if err != nil {
		return nil, err
	}

	if !s.Alive(ctx) {
		return nil, b.offerRestart(ctx)
	}

	b.emit(ctx, EventRun, observability.LevelVerbose, "bridge.Run", map[string]any{
		"silent": silent,
		"lines":  strings.Count(code, "\n") + 1,
	})

	req := messaging.NewExecute(code, silent)
	if silent {
		return nil, s.Fire(ctx, req)
	}

	reply, err := s.Invoke(ctx, req, s.Config().ExecuteTimeout.Std())
	if err != nil {
		return nil, err
	}
	var c messaging.ExecuteReply
	if err := reply.Decode(&c); err != nil {
		return nil, err
	}
	if err := b.loop.Do(ctx, func() { b.page(&c) }); err != nil {
		return &c, err
	}
	return &c, nil
}

// RunAsync sends code and returns without waiting. Paged output is written
// when the reply arrives.
func (b *Bridge) RunAsync(ctx context.Context, code string) error {
	s, err := b.current()
	if err != nil {
		return err
	}
	if !s.Alive(ctx) {
		return b.offerRestart(ctx)
	}

	return s.Notify(ctx, messaging.NewExecute(code, false), func(reply *messaging.Reply, err error) {
		if err != nil {
			b.emit(ctx, EventError, observability.LevelWarning, "bridge.RunAsync", map[string]any{
				"error": err,
			})
			return
		}
		var c messaging.ExecuteReply
		if err := reply.Decode(&c); err != nil {
			b.emit(ctx, EventError, observability.LevelWarning, "bridge.RunAsync", map[string]any{
				"error": err,
			})
			return
		}
		b.page(&c)
	})
}

// Complete asks the kernel for completions of line at byte offset col.
func (b *Bridge) Complete(ctx context.Context, line string, col int) (*Completion, error) {
	s, err := b.current()
	if err != nil {
		return nil, err
	}

	reply, err := s.Invoke(ctx, messaging.NewComplete(line, col), s.Config().ReplyTimeout.Std())
	if err != nil {
		return nil, err
	}
	var c messaging.CompleteReply
	if err := reply.Decode(&c); err != nil {
		return nil, err
	}

	matches := c.Matches
	if matches == nil {
		matches = []string{}
	}
	return &Completion{Start: c.CursorStart, End: c.CursorEnd, Matches: matches}, nil
}

// Inspect writes the kernel's documentation for word. Level 0 is the
// docstring, higher levels add detail such as source.
func (b *Bridge) Inspect(ctx context.Context, word string, level int) error {
	s, err := b.current()
	if err != nil {
		return err
	}

	reply, err := s.Invoke(ctx, messaging.NewInspect(word, level), s.Config().ReplyTimeout.Std())
	if err != nil {
		return err
	}
	var c messaging.InspectReply
	if err := reply.Decode(&c); err != nil {
		return err
	}

	highlight := b.config.Session.Render.Highlight()
	return b.loop.Do(ctx, func() {
		switch {
		case c.Status == "error":
			l := b.scrollback.Append(fmt.Sprintf("\nerror when inspecting %s: %s\n", word, c.EName))
			if highlight {
				b.scrollback.AddHighlight(display.GroupError, l+1, 0, -1)
			}
			if len(c.Traceback) > 0 {
				b.scrollback.Append(strings.Join(c.Traceback, "\n") + "\n")
			}
		case !c.Found:
			l := b.scrollback.Append(fmt.Sprintf("\nnot found: %s\n", word))
			if highlight {
				b.scrollback.AddHighlight(display.GroupWarning, l+1, 0, -1)
			}
		default:
			text, _ := c.Data.Text()
			b.scrollback.Append("\n" + text + "\n")
		}
	})
}

// Interrupt asks the kernel to stop what it is running. Calls waiting on
// the interrupted execution keep waiting for its reply.
func (b *Bridge) Interrupt(ctx context.Context) error {
	s, err := b.current()
	if err != nil {
		return err
	}
	return s.Interrupt(ctx)
}

// Terminate shuts the kernel process down.
func (b *Bridge) Terminate(ctx context.Context) error {
	s, err := b.current()
	if err != nil {
		return err
	}
	return s.Shutdown(ctx)
}

// Restart restarts the kernel. When the connection is gone, or the kernel
// was terminated or no longer exists, the bridge reconnects with the
// arguments of the last Connect instead.
func (b *Bridge) Restart(ctx context.Context) error {
	s, err := b.current()
	if err != nil {
		return err
	}

	select {
	case <-s.Disconnected():
		return b.reconnect(ctx, "disconnected")
	default:
	}
	if s.Terminated() {
		return b.reconnect(ctx, "terminated")
	}

	b.emit(ctx, EventRestart, observability.LevelInfo, "bridge.Restart", map[string]any{
		"kernel": s.KernelID(),
	})
	err = s.Restart(ctx)
	if errors.Is(err, transport.ErrKernelGone) {
		return b.reconnect(ctx, "kernel gone")
	}
	return err
}

func (b *Bridge) reconnect(ctx context.Context, reason string) error {
	b.mu.Lock()
	argv := b.argv
	b.mu.Unlock()

	b.emit(ctx, EventRestart, observability.LevelInfo, "bridge.Restart", map[string]any{
		"reconnect": true,
		"reason":    reason,
	})
	_, err := b.Connect(ctx, argv)
	return err
}

// Write appends text to the scrollback as if the kernel had printed it.
func (b *Bridge) Write(ctx context.Context, text string) error {
	return b.loop.Do(ctx, func() { b.scrollback.Append(text) })
}

// Output returns scrollback lines [from, to). A to of -1 means the end.
func (b *Bridge) Output(from, to int) ([]display.Line, int) {
	total := b.scrollback.LineCount()
	if to < 0 || to > total {
		to = total
	}
	return b.scrollback.Range(from, to), total
}

func (b *Bridge) Status(ctx context.Context) Status {
	st := Status{Lines: b.scrollback.LineCount()}

	b.mu.Lock()
	s := b.session
	st.Language = b.language
	b.mu.Unlock()

	if s == nil {
		return st
	}
	st.Connected = true
	st.KernelID = s.KernelID()
	st.Serial = s.Serial()
	st.State = s.Status()
	st.Alive = s.Alive(ctx)
	return st
}

// Close ends the current session. The kernel keeps running.
func (b *Bridge) Close(ctx context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if s := b.detach(); s != nil {
		return s.Close(ctx)
	}
	return nil
}

func (b *Bridge) current() (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, ErrNotConnected
	}
	return b.session, nil
}

func (b *Bridge) detach() *session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.session
	b.session = nil
	return s
}

func (b *Bridge) offerRestart(ctx context.Context) error {
	ok, err := b.prompter.Confirm(ctx, "Kernel died. Restart?")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKernelDead, err)
	}
	if !ok {
		return ErrKernelDead
	}
	if err := b.Restart(ctx); err != nil {
		return err
	}
	return ErrRestarted
}

// answerInput returns the session's stdin handler. A newer reply or input
// request arriving while the user types makes the answer stale, and it is
// dropped.
func (b *Bridge) answerInput(s *session.Session) session.InputFunc {
	return func(ctx context.Context, req *messaging.InputRequest, mark uint64) {
		value, err := b.prompter.Input(ctx, "(IPy) "+req.Prompt, req.Password)
		if err != nil {
			b.emit(ctx, EventInputAborted, observability.LevelInfo, "bridge.answerInput", map[string]any{
				"error": err,
			})
			if err := s.Interrupt(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.emit(ctx, EventError, observability.LevelWarning, "bridge.answerInput", map[string]any{
					"error": err,
				})
			}
			return
		}

		if s.Stale(mark) {
			b.emit(ctx, EventInputStale, observability.LevelInfo, "bridge.answerInput", map[string]any{
				"msg_id": req.ID,
			})
			return
		}
		if err := s.Send(ctx, messaging.NewInputReply(value)); err != nil {
			b.emit(ctx, EventError, observability.LevelWarning, "bridge.answerInput", map[string]any{
				"error": err,
			})
		}
	}
}

// page writes "page" payloads, such as IPython's "?" help, to the
// scrollback. Runs on the foreground loop.
func (b *Bridge) page(c *messaging.ExecuteReply) {
	for _, p := range c.Payload {
		if p.Source != "page" {
			continue
		}
		text := p.Text
		if text == "" {
			text, _ = p.Data.Text()
		}
		b.scrollback.Append(text)
	}
}

func (b *Bridge) banner(ctx context.Context, info *messaging.KernelInfo, first bool) error {
	var lines []string
	if first {
		lines = append(lines, greeting)
	}
	lines = append(lines,
		"Jupyter "+kernelVersion(info),
		fmt.Sprintf("language: %s %s", info.LanguageInfo.Name, info.LanguageInfo.Version),
		"",
	)

	return b.loop.Do(ctx, func() {
		text := strings.Join(lines, "\n")
		// the banner never shares a line with earlier output
		open := 0
		if _, col := b.scrollback.Cursor(); col > 0 {
			text = "\n" + text
			open = 1
		}
		l := b.scrollback.Append(text) + open
		for i, line := range lines {
			if line != "" {
				b.scrollback.AddHighlight(display.GroupComment, l+i, 0, -1)
			}
		}
	})
}

// kernelVersion formats ipython_version as "major.minor.patch[-tag]",
// falling back to the implementation version for other kernels.
func kernelVersion(info *messaging.KernelInfo) string {
	v := info.IPythonVersion
	if len(v) == 0 {
		return info.ImplementationVersion
	}

	parts := make([]string, 0, 3)
	for _, p := range v[:min(3, len(v))] {
		parts = append(parts, fmt.Sprint(p))
	}
	desc := strings.Join(parts, ".")
	if len(v) >= 4 {
		if tag := fmt.Sprint(v[3]); tag != "" {
			desc += "-" + tag
		}
	}
	return desc
}

func (b *Bridge) emit(ctx context.Context, eventType observability.EventType, level observability.Level, source string, data map[string]any) {
	b.observer.OnEvent(ctx, observability.NewEvent(eventType, level, source, data))
}
