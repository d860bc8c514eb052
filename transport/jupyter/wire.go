package jupyter

import (
	"encoding/json"
	"time"

	"github.com/tailored-agentic-units/ipybridge/messaging"
)

const (
	protocolVersion = "5.3"
	username        = "ipybridge"
)

type header struct {
	MsgID    string `json:"msg_id,omitempty"`
	MsgType  string `json:"msg_type,omitempty"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version,omitempty"`
}

// envelope is the JSON message shape of the server's websocket channels.
type envelope struct {
	Header       header          `json:"header"`
	ParentHeader header          `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel"`
	Buffers      []any           `json:"buffers"`
}

func encode(req *messaging.Request, session string) (*envelope, error) {
	content, err := json.Marshal(req.Content)
	if err != nil {
		return nil, err
	}
	return &envelope{
		Header: header{
			MsgID:    req.ID,
			MsgType:  string(req.Kind),
			Session:  session,
			Username: username,
			Date:     req.Timestamp.UTC().Format(time.RFC3339Nano),
			Version:  protocolVersion,
		},
		Metadata: map[string]any{},
		Content:  content,
		Channel:  req.Kind.Channel(),
		Buffers:  []any{},
	}, nil
}

type inputRequestContent struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

// kernelModel is the REST representation of a running kernel.
type kernelModel struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LastActivity   string `json:"last_activity,omitempty"`
	ExecutionState string `json:"execution_state,omitempty"`
	Connections    int    `json:"connections,omitempty"`
}
