// Package display holds the scrollback the kernel's output is rendered into.
//
// Sink is the narrow surface renderers write through. Buffer is the
// in-memory implementation with editor semantics: text always goes to the
// end, the last line is open and gets rewritten by the next append, and
// terminal escape sequences in the text become highlight ranges instead of
// raw bytes. Printer copies completed lines to a terminal.
package display

// Sink receives rendered output.
type Sink interface {
	// Append writes text at the end of the scrollback and returns the index
	// of the first line touched (the line that was last before the call).
	Append(text string) int
	// AddHighlight marks columns [colStart, colEnd) of line with group. A
	// colEnd of -1 extends to the end of the line.
	AddHighlight(group string, line, colStart, colEnd int)
	// SetStatus publishes the kernel execution state.
	SetStatus(status string)
}

// Highlight groups applied by the bridge.
const (
	GroupInput   = "IPyIn"
	GroupOutput  = "IPyOut"
	GroupBold    = "IPyBold"
	GroupComment = "Comment"
	GroupError   = "Error"
	GroupWarning = "WarningMsg"
)

// Highlight is one highlighted column range.
type Highlight struct {
	Group    string `json:"group"`
	Line     int    `json:"line"`
	ColStart int    `json:"col_start"`
	ColEnd   int    `json:"col_end"`
}

// Line is a line of text with the highlights that fall on it.
type Line struct {
	Text       string      `json:"text"`
	Highlights []Highlight `json:"highlights,omitempty"`
}
