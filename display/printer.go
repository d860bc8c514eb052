package display

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Printer copies completed buffer lines to a terminal, styling highlighted
// ranges. The open last line is held back until it is completed.
type Printer struct {
	buffer   *Buffer
	out      io.Writer
	renderer *lipgloss.Renderer
	styles   map[string]lipgloss.Style

	mu      sync.Mutex
	printed int
}

// NewPrinter writes lines of buffer to w. Color output follows the
// terminal capabilities lipgloss detects on w.
func NewPrinter(buffer *Buffer, w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		buffer:   buffer,
		out:      w,
		renderer: r,
		styles:   defaultStyles(r),
	}
}

// SetStyle overrides the style used for group.
func (p *Printer) SetStyle(group string, style lipgloss.Style) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.styles[group] = style
}

// Flush writes lines completed since the last call and returns how many were
// written.
func (p *Printer) Flush() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	complete := p.buffer.LineCount() - 1
	if complete <= p.printed {
		return 0, nil
	}

	lines := p.buffer.Range(p.printed, complete)
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.out, p.render(line)); err != nil {
			return 0, err
		}
		p.printed++
	}
	return len(lines), nil
}

func (p *Printer) render(line Line) string {
	if len(line.Highlights) == 0 {
		return line.Text
	}

	// split at every highlight boundary and style each piece with the
	// groups covering it
	cuts := []int{0, len(line.Text)}
	for _, h := range line.Highlights {
		cuts = append(cuts, clamp(h.ColStart, len(line.Text)), clamp(h.ColEnd, len(line.Text)))
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	var sb strings.Builder
	for i := 0; i+1 < len(cuts); i++ {
		from, to := cuts[i], cuts[i+1]
		style := p.renderer.NewStyle()
		styled := false
		for _, h := range line.Highlights {
			if h.ColStart <= from && to <= h.ColEnd {
				if s, ok := p.styles[h.Group]; ok {
					style = style.Inherit(s)
					styled = true
				}
			}
		}
		if styled {
			sb.WriteString(style.Render(line.Text[from:to]))
		} else {
			sb.WriteString(line.Text[from:to])
		}
	}
	return sb.String()
}

func clamp(v, hi int) int {
	return max(0, min(v, hi))
}

func defaultStyles(r *lipgloss.Renderer) map[string]lipgloss.Style {
	styles := map[string]lipgloss.Style{
		GroupInput:   r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		GroupOutput:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		GroupBold:    r.NewStyle().Bold(true),
		GroupComment: r.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		GroupError:   r.NewStyle().Foreground(lipgloss.Color("9")),
		GroupWarning: r.NewStyle().Foreground(lipgloss.Color("11")),
	}
	for n := range 16 {
		styles["IPyFg"+strconv.Itoa(n)] = r.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(n)))
	}
	return styles
}
