package display

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithANSIHighlight controls whether SGR escape sequences become IPyFg/IPyBold
// highlights. Escape sequences are stripped either way.
func WithANSIHighlight(enabled bool) BufferOption {
	return func(b *Buffer) { b.ansiHighlight = enabled }
}

// Buffer is an append-only scrollback. It always holds at least one line;
// the last line is the open line the next Append continues.
type Buffer struct {
	mu         sync.Mutex
	lines      []string
	highlights []Highlight
	status     string

	ansi          *ansiProcessor
	ansiHighlight bool
}

// NewBuffer returns an empty buffer with ANSI highlighting enabled.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		lines:         []string{""},
		ansi:          newANSIProcessor(),
		ansiHighlight: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append continues the open line with text. The read of the open line, the
// rewrite and the cursor move happen under one lock, so concurrent appends
// never interleave within a call.
func (b *Buffer) Append(text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := len(b.lines) - 1

	type styled struct {
		text   string
		groups []string
	}
	var (
		lines   [][]styled
		current = []styled{{text: b.lines[start]}}
	)

	for _, c := range b.ansi.split(text) {
		switch c.action {
		case actionNewline:
			lines = append(lines, current)
			current = nil
		case actionCarriageReturn:
			current = nil
		case actionBackspace:
			for len(current) > 0 {
				last := &current[len(current)-1]
				if last.text == "" {
					current = current[:len(current)-1]
					continue
				}
				_, size := utf8.DecodeLastRuneInString(last.text)
				last.text = last.text[:len(last.text)-size]
				if last.text == "" {
					current = current[:len(current)-1]
				}
				break
			}
		default:
			var groups []string
			if b.ansiHighlight {
				groups = c.groups()
			}
			current = append(current, styled{text: c.text, groups: groups})
		}
	}
	lines = append(lines, current)

	rewritten := make([]string, len(lines))
	for i, line := range lines {
		var sb strings.Builder
		col := 0
		for _, s := range line {
			sb.WriteString(s.text)
			end := col + len(s.text)
			for _, g := range s.groups {
				b.highlights = append(b.highlights, Highlight{
					Group:    g,
					Line:     start + i,
					ColStart: col,
					ColEnd:   end,
				})
			}
			col = end
		}
		rewritten[i] = sb.String()
	}

	b.lines = append(b.lines[:start], rewritten...)
	return start
}

func (b *Buffer) AddHighlight(group string, line, colStart, colEnd int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.highlights = append(b.highlights, Highlight{
		Group:    group,
		Line:     line,
		ColStart: colStart,
		ColEnd:   colEnd,
	})
}

func (b *Buffer) SetStatus(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *Buffer) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Lines returns the buffer's lines. A trailing empty open line, the state
// after text ending in a newline, is not included.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.lines)
	if b.lines[n-1] == "" {
		n--
	}
	out := make([]string, n)
	copy(out, b.lines[:n])
	return out
}

// LineCount returns the number of lines including the open line.
func (b *Buffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Cursor returns the end-of-text position as (line, column).
func (b *Buffer) Cursor() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	last := len(b.lines) - 1
	return last, len(b.lines[last])
}

// Text returns the whole buffer joined by newlines.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// Highlights returns a copy of every highlight added so far.
func (b *Buffer) Highlights() []Highlight {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Highlight, len(b.highlights))
	copy(out, b.highlights)
	return out
}

// Range returns lines [from, to) with their highlights. Column ends of -1
// are resolved to the line length. Indexes are clamped to the buffer.
func (b *Buffer) Range(from, to int) []Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	from = max(from, 0)
	to = min(to, len(b.lines))
	if from >= to {
		return nil
	}

	out := make([]Line, to-from)
	for i := range out {
		out[i].Text = b.lines[from+i]
	}
	for _, h := range b.highlights {
		if h.Line < from || h.Line >= to {
			continue
		}
		line := &out[h.Line-from]
		if h.ColEnd < 0 || h.ColEnd > len(line.Text) {
			h.ColEnd = len(line.Text)
		}
		line.Highlights = append(line.Highlights, h)
	}
	return out
}
