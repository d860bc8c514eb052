package display

import (
	"fmt"
	"strconv"
	"strings"
)

type action int

const (
	actionNone action = iota
	actionNewline
	actionCarriageReturn
	actionBackspace
)

// chunk is either a run of text under one style, or a control action.
type chunk struct {
	text   string
	action action
	bold   bool
	fg     int // -1 when unset
}

// groups returns the highlight groups for the chunk's style. Colors above
// 16 are not mapped; bold brightens the eight base colors.
func (c chunk) groups() []string {
	var out []string
	color := c.fg
	if color > 16 {
		color = -1
	}
	if color >= 0 {
		if c.bold && color < 8 {
			color += 8
		}
		out = append(out, fmt.Sprintf("IPyFg%d", color))
	}
	if c.bold {
		out = append(out, GroupBold)
	}
	return out
}

// maxPending bounds an unfinished escape sequence held between calls. A
// longer one is dropped.
const maxPending = 256

// ansiProcessor splits text into styled chunks and control actions. SGR
// state persists across calls, and an escape sequence cut off at the end of
// one call is completed by the next, as streams arrive in arbitrary pieces.
type ansiProcessor struct {
	bold    bool
	fg      int
	pending string
}

func newANSIProcessor() *ansiProcessor {
	return &ansiProcessor{fg: -1}
}

func (p *ansiProcessor) split(s string) []chunk {
	s, p.pending = p.pending+s, ""

	var (
		out  []chunk
		text strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			out = append(out, chunk{text: text.String(), bold: p.bold, fg: p.fg})
			text.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\n':
			flush()
			out = append(out, chunk{action: actionNewline})
		case '\r':
			flush()
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
				out = append(out, chunk{action: actionNewline})
				continue
			}
			out = append(out, chunk{action: actionCarriageReturn})
		case '\b':
			flush()
			out = append(out, chunk{action: actionBackspace})
		case '\a':
			// bell
		case 0x1b:
			flush()
			end, ok := p.escape(s, i)
			if !ok {
				if len(s)-i <= maxPending {
					p.pending = s[i:]
				}
				return out
			}
			i = end
		default:
			text.WriteByte(c)
		}
	}
	flush()
	return out
}

// escape consumes the escape sequence starting at s[i] and returns the index
// of its last byte. CSI "m" sequences update the SGR state; every other
// sequence is dropped. ok is false when s ends before the sequence does.
func (p *ansiProcessor) escape(s string, i int) (end int, ok bool) {
	if i+1 >= len(s) {
		return 0, false
	}
	switch s[i+1] {
	case '[':
		j := i + 2
		for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
			j++
		}
		if j >= len(s) {
			return 0, false
		}
		if s[j] == 'm' {
			p.sgr(s[i+2 : j])
		}
		return j, true
	case ']':
		// OSC, terminated by BEL or ST
		for j := i + 2; j < len(s); j++ {
			if s[j] == '\a' {
				return j, true
			}
			if s[j] == 0x1b && j+1 < len(s) && s[j+1] == '\\' {
				return j + 1, true
			}
		}
		return 0, false
	default:
		return i + 1, true
	}
}

func (p *ansiProcessor) sgr(params string) {
	if params == "" {
		p.reset()
		return
	}
	codes := strings.Split(params, ";")
	for k := 0; k < len(codes); k++ {
		code, err := strconv.Atoi(codes[k])
		if err != nil {
			continue
		}
		switch {
		case code == 0:
			p.reset()
		case code == 1:
			p.bold = true
		case code == 22:
			p.bold = false
		case code >= 30 && code <= 37:
			p.fg = code - 30
		case code == 38:
			if k+2 < len(codes) && codes[k+1] == "5" {
				if n, err := strconv.Atoi(codes[k+2]); err == nil {
					p.fg = n
				}
				k += 2
			} else if k+4 < len(codes) && codes[k+1] == "2" {
				// truecolor has no group
				p.fg = 256
				k += 4
			}
		case code == 39:
			p.fg = -1
		case code >= 90 && code <= 97:
			p.fg = code - 90 + 8
		}
	}
}

func (p *ansiProcessor) reset() {
	p.bold = false
	p.fg = -1
}
