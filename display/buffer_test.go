package display_test

import (
	"bytes"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/ipybridge/display"
)

func TestBuffer_AppendLines(t *testing.T) {
	b := display.NewBuffer()

	if got := b.Append("foo\n"); got != 0 {
		t.Errorf("first Append returned %d, want 0", got)
	}
	if got := b.Append("bar\n"); got != 1 {
		t.Errorf("second Append returned %d, want 1", got)
	}

	lines := b.Lines()
	if len(lines) != 2 || lines[0] != "foo" || lines[1] != "bar" {
		t.Errorf("got lines %q, want [foo bar]", lines)
	}

	line, col := b.Cursor()
	if line != 2 || col != 0 {
		t.Errorf("got cursor (%d, %d), want (2, 0)", line, col)
	}
}

func TestBuffer_AppendContinuesOpenLine(t *testing.T) {
	b := display.NewBuffer()
	b.Append("Out[1]: ")
	first := b.Append("2\n")

	if first != 0 {
		t.Errorf("got %d, want 0", first)
	}
	if got := b.Lines(); len(got) != 1 || got[0] != "Out[1]: 2" {
		t.Errorf("got %q", got)
	}
}

func TestBuffer_ControlCharacters(t *testing.T) {
	tests := []struct {
		name   string
		appends []string
		want   string
	}{
		{name: "carriage return rewrites line", appends: []string{"10%\r50%\r100%\n"}, want: "100%\n"},
		{name: "crlf is a newline", appends: []string{"a\r\nb\r\n"}, want: "a\nb\n"},
		{name: "backspace", appends: []string{"abc\b\bx\n"}, want: "ax\n"},
		{name: "backspace into previous append", appends: []string{"ab", "\bc\n"}, want: "ac\n"},
		{name: "backspace on empty line", appends: []string{"\b\bok"}, want: "ok"},
		{name: "multibyte backspace", appends: []string{"né\b\n"}, want: "n\n"},
		{name: "bell dropped", appends: []string{"ding\a\n"}, want: "ding\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := display.NewBuffer()
			for _, s := range tt.appends {
				b.Append(s)
			}
			if got := b.Text(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuffer_ANSIHighlights(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantText  string
		wantHl    []display.Highlight
	}{
		{
			name:     "red",
			input:    "\x1b[31merror\x1b[0m ok",
			wantText: "error ok",
			wantHl:   []display.Highlight{{Group: "IPyFg1", Line: 0, ColStart: 0, ColEnd: 5}},
		},
		{
			name:     "bold brightens base color",
			input:    "\x1b[1;32mpass\x1b[0m",
			wantText: "pass",
			wantHl: []display.Highlight{
				{Group: "IPyFg10", Line: 0, ColStart: 0, ColEnd: 4},
				{Group: "IPyBold", Line: 0, ColStart: 0, ColEnd: 4},
			},
		},
		{
			name:     "bright color",
			input:    "\x1b[94mx",
			wantText: "x",
			wantHl:   []display.Highlight{{Group: "IPyFg12", Line: 0, ColStart: 0, ColEnd: 1}},
		},
		{
			name:     "256 color beyond 16 has no group",
			input:    "\x1b[38;5;200mx\x1b[39m",
			wantText: "x",
		},
		{
			name:     "non-SGR sequences stripped",
			input:    "\x1b[2Kclear\x1b]0;title\a",
			wantText: "clear",
		},
		{
			name:     "style spans newline",
			input:    "\x1b[33ma\nb\x1b[0m",
			wantText: "a\nb",
			wantHl: []display.Highlight{
				{Group: "IPyFg3", Line: 0, ColStart: 0, ColEnd: 1},
				{Group: "IPyFg3", Line: 1, ColStart: 0, ColEnd: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := display.NewBuffer()
			b.Append(tt.input)

			if got := b.Text(); got != tt.wantText {
				t.Errorf("got text %q, want %q", got, tt.wantText)
			}
			got := b.Highlights()
			if len(got) != len(tt.wantHl) {
				t.Fatalf("got highlights %+v, want %+v", got, tt.wantHl)
			}
			for i := range got {
				if got[i] != tt.wantHl[i] {
					t.Errorf("highlight %d = %+v, want %+v", i, got[i], tt.wantHl[i])
				}
			}
		})
	}
}

func TestBuffer_ANSIStatePersistsAcrossAppends(t *testing.T) {
	b := display.NewBuffer()
	b.Append("\x1b[31m")
	b.Append("red")

	hls := b.Highlights()
	if len(hls) != 1 || hls[0].Group != "IPyFg1" {
		t.Errorf("got %+v", hls)
	}
}

func TestBuffer_ANSISequenceSplitAcrossAppends(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []string
		wantText string
		wantHL   []string
	}{
		{"csi params", []string{"\x1b[3", "1mred"}, "red", []string{"IPyFg1"}},
		{"lone escape", []string{"a\x1b", "[1mb"}, "ab", []string{display.GroupBold}},
		{"osc title", []string{"\x1b]0;ti", "tle\aok"}, "ok", nil},
		{"three pieces", []string{"\x1b", "[", "32mgo"}, "go", []string{"IPyFg2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := display.NewBuffer()
			for _, c := range tt.chunks {
				b.Append(c)
			}

			if got := b.Text(); got != tt.wantText {
				t.Errorf("got text %q, want %q", got, tt.wantText)
			}
			var groups []string
			for _, h := range b.Highlights() {
				groups = append(groups, h.Group)
			}
			if !slices.Equal(groups, tt.wantHL) {
				t.Errorf("got groups %q, want %q", groups, tt.wantHL)
			}
		})
	}
}

func TestBuffer_ANSIHighlightDisabled(t *testing.T) {
	b := display.NewBuffer(display.WithANSIHighlight(false))
	b.Append("\x1b[31mred\x1b[0m\n")

	if got := b.Text(); got != "red\n" {
		t.Errorf("got %q", got)
	}
	if n := len(b.Highlights()); n != 0 {
		t.Errorf("got %d highlights, want 0", n)
	}
}

func TestBuffer_ConcurrentAppendsAreAtomic(t *testing.T) {
	b := display.NewBuffer()
	const writers, each = 8, 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := range writers {
		go func() {
			defer wg.Done()
			line := strings.Repeat(string(rune('a'+w)), 10) + "\n"
			for range each {
				b.Append(line)
			}
		}()
	}
	wg.Wait()

	lines := b.Lines()
	if len(lines) != writers*each {
		t.Fatalf("got %d lines, want %d", len(lines), writers*each)
	}
	for _, l := range lines {
		if len(l) != 10 || strings.Count(l, l[:1]) != 10 {
			t.Fatalf("interleaved line %q", l)
		}
	}
}

func TestBuffer_RangeResolvesEndOfLine(t *testing.T) {
	b := display.NewBuffer()
	b.Append("not found: x\n")
	b.AddHighlight(display.GroupWarning, 0, 0, -1)

	r := b.Range(0, 5)
	if len(r) != 2 {
		t.Fatalf("got %d lines, want 2", len(r))
	}
	if len(r[0].Highlights) != 1 || r[0].Highlights[0].ColEnd != len("not found: x") {
		t.Errorf("got %+v", r[0].Highlights)
	}
	if b.Range(3, 1) != nil {
		t.Error("empty range should be nil")
	}
}

func TestBuffer_Status(t *testing.T) {
	b := display.NewBuffer()
	b.SetStatus("busy")
	if got := b.Status(); got != "busy" {
		t.Errorf("got %q, want busy", got)
	}
}

func TestPrinter_FlushCompletedLines(t *testing.T) {
	b := display.NewBuffer()
	var out bytes.Buffer
	p := display.NewPrinter(b, &out)

	b.Append("In[1]: 1+1\nOut[1]: ")
	b.AddHighlight(display.GroupInput, 0, 0, 7)

	n, err := p.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 1 {
		t.Errorf("flushed %d lines, want 1", n)
	}

	b.Append("2\n")
	if n, _ := p.Flush(); n != 1 {
		t.Errorf("flushed %d lines, want 1", n)
	}
	if n, _ := p.Flush(); n != 0 {
		t.Errorf("flushed %d lines on idle buffer, want 0", n)
	}

	// a non-terminal writer gets no escape codes
	want := "In[1]: 1+1\nOut[1]: 2\n"
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
