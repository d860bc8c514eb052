package messaging

import (
	"encoding/json"
	"fmt"
)

// Reply is a shell or control channel response. ParentID is the ID of the
// request it answers.
type Reply struct {
	ParentID string          `json:"parent_id"`
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
}

// NewReply encodes content into a Reply. Used by in-memory kernels.
func NewReply(parentID, msgType string, content any) (*Reply, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", msgType, err)
	}
	return &Reply{ParentID: parentID, Type: msgType, Content: data}, nil
}

// Decode unmarshals the reply content into v.
func (r *Reply) Decode(v any) error {
	if err := json.Unmarshal(r.Content, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", r.Type, err)
	}
	return nil
}

// InputRequest is the kernel asking the user for a line of stdin.
type InputRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}
