// Package render turns kernel broadcasts into scrollback text.
//
// Renderer.Handle is the dispatcher's handler: it classifies a broadcast and
// applies the matching transition to the display sink. It never panics on
// malformed content; decode failures are returned and reported by the
// dispatcher while the next broadcast is rendered normally.
package render

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/tailored-agentic-units/ipybridge/display"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/observability"
)

// StatusTracker receives the kernel state changes a broadcast implies.
type StatusTracker interface {
	SetStatus(status string)
	MarkDead()
}

// StatusDead is the status shown once the heartbeat is lost.
const StatusDead = "DEAD"

// Option configures a Renderer.
type Option func(*Renderer)

func WithObserver(o observability.Observer) Option {
	return func(r *Renderer) { r.observer = o }
}

type Renderer struct {
	sink     display.Sink
	tracker  StatusTracker
	config   Config
	observer observability.Observer
}

// New creates a Renderer writing to sink. tracker may be nil.
func New(sink display.Sink, cfg Config, tracker StatusTracker, opts ...Option) *Renderer {
	r := &Renderer{
		sink:     sink,
		tracker:  tracker,
		config:   cfg,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle renders one broadcast.
func (r *Renderer) Handle(ctx context.Context, b *messaging.Broadcast) error {
	r.observer.OnEvent(ctx, observability.NewEvent(
		EventRendered,
		observability.LevelVerbose,
		"render.Handle",
		map[string]any{"msg_type": b.RawType, "parent_id": b.ParentID},
	))

	switch b.Type {
	case messaging.BroadcastStatus:
		return r.status(b)
	case messaging.BroadcastInputEcho:
		return r.inputEcho(b)
	case messaging.BroadcastResult:
		return r.result(b)
	case messaging.BroadcastError:
		return r.traceback(b)
	case messaging.BroadcastStream:
		return r.stream(b)
	case messaging.BroadcastDisplay:
		return r.richDisplay(b)
	case messaging.BroadcastHeartbeatLost:
		r.heartbeatLost(ctx)
		return nil
	default:
		r.observer.OnEvent(ctx, observability.NewEvent(
			EventUnknownType,
			observability.LevelVerbose,
			"render.Handle",
			map[string]any{"msg_type": b.RawType},
		))
		r.sink.Append(fmt.Sprintf("[%s]\n", b.RawType))
		return nil
	}
}

func (r *Renderer) status(b *messaging.Broadcast) error {
	var c messaging.Status
	if err := b.Decode(&c); err != nil {
		return err
	}
	r.sink.SetStatus(c.ExecutionState)
	if r.tracker != nil {
		r.tracker.SetStatus(c.ExecutionState)
	}
	return nil
}

func (r *Renderer) inputEcho(b *messaging.Broadcast) error {
	var c messaging.ExecuteInput
	if err := b.Decode(&c); err != nil {
		return err
	}

	prompt := r.config.InputPrompt(c.ExecutionCount)
	code := strings.Split(strings.TrimRightFunc(c.Code, unicode.IsSpace), "\n")
	if limit := r.config.TruncateInput; limit > 0 && len(code) > limit {
		code = append(code[:limit:limit], ".....")
	}
	sep := "\n" + strings.Repeat(" ", len(prompt))

	line := r.sink.Append("\n" + prompt + strings.Join(code, sep) + "\n")
	r.sink.AddHighlight(display.GroupInput, line+1, 0, len(prompt))
	return nil
}

func (r *Renderer) result(b *messaging.Broadcast) error {
	var c messaging.ExecuteResult
	if err := b.Decode(&c); err != nil {
		return err
	}

	prompt := r.config.OutputPrompt(c.ExecutionCount)
	line := r.sink.Append(prompt + strings.TrimRightFunc(plainText(c.Data), unicode.IsSpace) + "\n")
	r.sink.AddHighlight(display.GroupOutput, line, 0, len(prompt))
	return nil
}

func (r *Renderer) traceback(b *messaging.Broadcast) error {
	var c messaging.Error
	if err := b.Decode(&c); err != nil {
		return err
	}
	r.sink.Append(strings.Join(c.Traceback, "\n") + "\n")
	return nil
}

func (r *Renderer) stream(b *messaging.Broadcast) error {
	var c messaging.Stream
	if err := b.Decode(&c); err != nil {
		return err
	}
	text := c.Text
	if r.config.TagStreams && c.Name != "" && c.Name != "stdout" {
		text = "[" + c.Name + "] " + text
	}
	r.sink.Append(text)
	return nil
}

func (r *Renderer) richDisplay(b *messaging.Broadcast) error {
	var c messaging.DisplayData
	if err := b.Decode(&c); err != nil {
		return err
	}
	r.sink.Append(plainText(c.Data) + "\n")
	return nil
}

func (r *Renderer) heartbeatLost(ctx context.Context) {
	if r.tracker != nil {
		r.tracker.MarkDead()
		r.tracker.SetStatus(StatusDead)
	}
	r.sink.SetStatus(StatusDead)
	r.observer.OnEvent(ctx, observability.NewEvent(
		EventKernelDead,
		observability.LevelWarning,
		"render.Handle",
		nil,
	))
}

// plainText returns the text/plain representation, or a bracketed list of
// the available MIME types when there is none.
func plainText(data messaging.MimeBundle) string {
	if text, ok := data.Text(); ok {
		return text
	}
	types := slices.Sorted(maps.Keys(data))
	return "[" + strings.Join(types, ", ") + "]"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
