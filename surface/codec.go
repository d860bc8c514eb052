package surface

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/ipybridge/display"
)

// Messages travel as google.protobuf.Struct. These are their shapes.

type empty struct{}

type connectRequest struct {
	Argv []string `json:"argv,omitempty"`
}

type runRequest struct {
	Code   string `json:"code"`
	Silent bool   `json:"silent,omitempty"`
	Async  bool   `json:"async,omitempty"`
}

type completeRequest struct {
	Line string `json:"line"`
	Col  int    `json:"col"`
}

type inspectRequest struct {
	Word  string `json:"word"`
	Level int    `json:"level,omitempty"`
}

type writeRequest struct {
	Text string `json:"text"`
}

// outputRequest selects lines [From, To); a missing To means the end.
type outputRequest struct {
	From int  `json:"from,omitempty"`
	To   *int `json:"to,omitempty"`
}

type outputResponse struct {
	Lines []display.Line `json:"lines"`
	Total int            `json:"total"`
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
