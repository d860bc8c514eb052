package messaging

import (
	"encoding/json"
	"fmt"
)

// BroadcastType classifies iopub messages.
type BroadcastType int

const (
	BroadcastUnknown BroadcastType = iota
	BroadcastStatus
	BroadcastInputEcho
	BroadcastResult
	BroadcastError
	BroadcastStream
	BroadcastDisplay
	BroadcastHeartbeatLost
)

// RawHeartbeatLost is the synthetic msg_type transports use when the kernel
// stops answering heartbeats.
const RawHeartbeatLost = "heartbeat_lost"

var broadcastNames = map[BroadcastType]string{
	BroadcastUnknown:       "unknown",
	BroadcastStatus:        "status",
	BroadcastInputEcho:     "input-echo",
	BroadcastResult:        "result",
	BroadcastError:         "error",
	BroadcastStream:        "stream-text",
	BroadcastDisplay:       "rich-display",
	BroadcastHeartbeatLost: "heartbeat-lost",
}

func (t BroadcastType) String() string {
	if name, ok := broadcastNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BroadcastType(%d)", int(t))
}

// ParseBroadcastType maps a wire msg_type onto a BroadcastType.
func ParseBroadcastType(raw string) BroadcastType {
	switch raw {
	case "status":
		return BroadcastStatus
	case "execute_input", "pyin":
		return BroadcastInputEcho
	case "execute_result", "pyout":
		return BroadcastResult
	case "error", "pyerr":
		return BroadcastError
	case "stream":
		return BroadcastStream
	case "display_data", "update_display_data":
		return BroadcastDisplay
	case RawHeartbeatLost:
		return BroadcastHeartbeatLost
	default:
		return BroadcastUnknown
	}
}

// Broadcast is an unsolicited iopub message.
type Broadcast struct {
	Type     BroadcastType   `json:"-"`
	RawType  string          `json:"type"`
	ParentID string          `json:"parent_id,omitempty"`
	Content  json.RawMessage `json:"content"`
}

// NewBroadcast classifies rawType and encodes content.
func NewBroadcast(rawType, parentID string, content any) (*Broadcast, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", rawType, err)
	}
	return &Broadcast{
		Type:     ParseBroadcastType(rawType),
		RawType:  rawType,
		ParentID: parentID,
		Content:  data,
	}, nil
}

// HeartbeatLost builds the broadcast a transport emits when the kernel
// stops responding.
func HeartbeatLost() *Broadcast {
	return &Broadcast{
		Type:    BroadcastHeartbeatLost,
		RawType: RawHeartbeatLost,
		Content: json.RawMessage("{}"),
	}
}

// Decode unmarshals the broadcast content into v.
func (b *Broadcast) Decode(v any) error {
	if err := json.Unmarshal(b.Content, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", b.RawType, err)
	}
	return nil
}
