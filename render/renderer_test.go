package render_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tailored-agentic-units/ipybridge/display"
	"github.com/tailored-agentic-units/ipybridge/messaging"
	"github.com/tailored-agentic-units/ipybridge/render"
)

type tracker struct {
	statuses []string
	dead     bool
}

func (t *tracker) SetStatus(s string) { t.statuses = append(t.statuses, s) }
func (t *tracker) MarkDead()          { t.dead = true }

func broadcast(t *testing.T, rawType string, content any) *messaging.Broadcast {
	t.Helper()
	b, err := messaging.NewBroadcast(rawType, "parent", content)
	if err != nil {
		t.Fatalf("NewBroadcast failed: %v", err)
	}
	return b
}

func TestRenderer_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      render.Config
		rawType  string
		content  any
		wantText string
	}{
		{
			name:     "input echo",
			rawType:  "execute_input",
			content:  messaging.ExecuteInput{Code: "1+1", ExecutionCount: 1},
			wantText: "\nIn[1]: 1+1\n",
		},
		{
			name:     "legacy pyin",
			rawType:  "pyin",
			content:  messaging.ExecuteInput{Code: "x\n", ExecutionCount: 4},
			wantText: "\nIn[4]: x\n",
		},
		{
			name:     "multi-line input indented by prompt width",
			rawType:  "execute_input",
			content:  messaging.ExecuteInput{Code: "for i in x:\n    f(i)\n", ExecutionCount: 2},
			wantText: "\nIn[2]: for i in x:\n           f(i)\n",
		},
		{
			name:     "truncated input",
			cfg:      render.Config{TruncateInput: 2},
			rawType:  "execute_input",
			content:  messaging.ExecuteInput{Code: "a\nb\nc\nd", ExecutionCount: 3},
			wantText: "\nIn[3]: a\n       b\n       .....\n",
		},
		{
			name:     "short prompt",
			cfg:      render.Config{ShortPrompt: true},
			rawType:  "execute_result",
			content:  messaging.ExecuteResult{ExecutionCount: 7, Data: messaging.MimeBundle{"text/plain": "42  \n"}},
			wantText: "7: 42\n",
		},
		{
			name:     "result",
			rawType:  "execute_result",
			content:  messaging.ExecuteResult{ExecutionCount: 1, Data: messaging.MimeBundle{"text/plain": "2"}},
			wantText: "Out[1]: 2\n",
		},
		{
			name:     "error traceback",
			rawType:  "error",
			content:  messaging.Error{EName: "ZeroDivisionError", Traceback: []string{"Traceback", "ZeroDivisionError: division by zero"}},
			wantText: "Traceback\nZeroDivisionError: division by zero\n",
		},
		{
			name:     "stream",
			rawType:  "stream",
			content:  messaging.Stream{Name: "stdout", Text: "hello\n"},
			wantText: "hello\n",
		},
		{
			name:     "tagged stderr",
			cfg:      render.Config{TagStreams: true},
			rawType:  "stream",
			content:  messaging.Stream{Name: "stderr", Text: "warn\n"},
			wantText: "[stderr] warn\n",
		},
		{
			name:     "display text",
			rawType:  "display_data",
			content:  messaging.DisplayData{Data: messaging.MimeBundle{"text/plain": "<Figure>"}},
			wantText: "<Figure>\n",
		},
		{
			name:     "display without text",
			rawType:  "display_data",
			content:  messaging.DisplayData{Data: messaging.MimeBundle{"image/png": "...", "text/html": "..."}},
			wantText: "[image/png, text/html]\n",
		},
		{
			name:     "unknown type",
			rawType:  "comm_open",
			content:  map[string]any{},
			wantText: "[comm_open]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := display.NewBuffer()
			r := render.New(buf, tt.cfg, nil)

			if err := r.Handle(context.Background(), broadcast(t, tt.rawType, tt.content)); err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if got := buf.Text(); got != tt.wantText {
				t.Errorf("got %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestRenderer_PromptHighlights(t *testing.T) {
	buf := display.NewBuffer()
	r := render.New(buf, render.DefaultConfig(), nil)
	ctx := context.Background()

	r.Handle(ctx, broadcast(t, "execute_input", messaging.ExecuteInput{Code: "1+1", ExecutionCount: 1}))
	r.Handle(ctx, broadcast(t, "execute_result", messaging.ExecuteResult{ExecutionCount: 1, Data: messaging.MimeBundle{"text/plain": "2"}}))

	// echo before result
	want := "\nIn[1]: 1+1\nOut[1]: 2\n"
	if got := buf.Text(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	hls := buf.Highlights()
	wantHl := []display.Highlight{
		{Group: display.GroupInput, Line: 1, ColStart: 0, ColEnd: len("In[1]: ")},
		{Group: display.GroupOutput, Line: 2, ColStart: 0, ColEnd: len("Out[1]: ")},
	}
	if len(hls) != len(wantHl) {
		t.Fatalf("got %+v, want %+v", hls, wantHl)
	}
	for i := range wantHl {
		if hls[i] != wantHl[i] {
			t.Errorf("highlight %d = %+v, want %+v", i, hls[i], wantHl[i])
		}
	}
}

func TestRenderer_Status(t *testing.T) {
	buf := display.NewBuffer()
	tr := &tracker{}
	r := render.New(buf, render.DefaultConfig(), tr)

	if err := r.Handle(context.Background(), broadcast(t, "status", messaging.Status{ExecutionState: "busy"})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if buf.Status() != "busy" {
		t.Errorf("got sink status %q, want busy", buf.Status())
	}
	if len(tr.statuses) != 1 || tr.statuses[0] != "busy" {
		t.Errorf("got tracker statuses %v", tr.statuses)
	}
	if buf.Text() != "" {
		t.Errorf("status should not append text, got %q", buf.Text())
	}
}

func TestRenderer_HeartbeatLost(t *testing.T) {
	buf := display.NewBuffer()
	tr := &tracker{}
	r := render.New(buf, render.DefaultConfig(), tr)

	if err := r.Handle(context.Background(), messaging.HeartbeatLost()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !tr.dead {
		t.Error("tracker was not marked dead")
	}
	if buf.Status() != render.StatusDead {
		t.Errorf("got status %q, want %q", buf.Status(), render.StatusDead)
	}
}

func TestRenderer_MalformedContent(t *testing.T) {
	buf := display.NewBuffer()
	r := render.New(buf, render.DefaultConfig(), nil)

	bad := &messaging.Broadcast{
		Type:    messaging.BroadcastResult,
		RawType: "execute_result",
		Content: json.RawMessage(`{"execution_count": "one"}`),
	}
	if err := r.Handle(context.Background(), bad); err == nil {
		t.Error("expected decode error")
	}
	if buf.Text() != "" {
		t.Errorf("malformed content should not append, got %q", buf.Text())
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := render.DefaultConfig()
	cfg.Merge(&render.Config{ShortPrompt: true, TruncateInput: 5})

	if !cfg.ShortPrompt || cfg.TruncateInput != 5 {
		t.Errorf("got %+v", cfg)
	}
	if !cfg.Highlight() {
		t.Error("highlight should stay on by default")
	}

	cfg.Merge(&render.Config{})
	if cfg.TruncateInput != 5 {
		t.Errorf("zero merge changed TruncateInput to %d", cfg.TruncateInput)
	}
}
