package messaging

// Request content.

type ExecuteRequest struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

type InspectRequest struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

type InputReply struct {
	Value string `json:"value"`
}

type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// Broadcast content.

type Status struct {
	ExecutionState string `json:"execution_state"`
}

type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// MimeBundle maps MIME types to their representation.
type MimeBundle map[string]any

// Text returns the text/plain representation, if any.
func (m MimeBundle) Text() (string, bool) {
	v, ok := m["text/plain"]
	if !ok {
		return "", false
	}
	switch text := v.(type) {
	case string:
		return text, true
	case []any:
		// multi-line strings may arrive as a list of lines
		var out string
		for _, part := range text {
			if s, ok := part.(string); ok {
				out += s
			}
		}
		return out, true
	default:
		return "", false
	}
}

type ExecuteResult struct {
	ExecutionCount int            `json:"execution_count"`
	Data           MimeBundle     `json:"data"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type DisplayData struct {
	Data     MimeBundle     `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Error struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Reply content.

// PayloadItem is a side-channel instruction attached to an execute_reply.
// Only "page" payloads are rendered.
type PayloadItem struct {
	Source string     `json:"source"`
	Text   string     `json:"text,omitempty"`
	Data   MimeBundle `json:"data,omitempty"`
	Start  int        `json:"start,omitempty"`
}

type ExecuteReply struct {
	Status         string        `json:"status"`
	ExecutionCount int           `json:"execution_count"`
	Payload        []PayloadItem `json:"payload,omitempty"`
	EName          string        `json:"ename,omitempty"`
	EValue         string        `json:"evalue,omitempty"`
	Traceback      []string      `json:"traceback,omitempty"`
}

type CompleteReply struct {
	Status      string   `json:"status"`
	Matches     []string `json:"matches"`
	CursorStart int      `json:"cursor_start"`
	CursorEnd   int      `json:"cursor_end"`
}

type InspectReply struct {
	Status    string     `json:"status"`
	Found     bool       `json:"found"`
	Data      MimeBundle `json:"data,omitempty"`
	EName     string     `json:"ename,omitempty"`
	Traceback []string   `json:"traceback,omitempty"`
}

type LanguageInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	FileExtension string `json:"file_extension,omitempty"`
}

// KernelInfo is the kernel_info_reply content. IPythonVersion is only sent by
// older IPython kernels as [major, minor, patch, tag].
type KernelInfo struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	IPythonVersion        []any        `json:"ipython_version,omitempty"`
	Banner                string       `json:"banner,omitempty"`
}
