// Package ws bridges the event bus to WebSocket clients.
package ws

import "encoding/json"

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeEvent FrameType = "event"
)

// Frame is the WebSocket protocol envelope. The stream is one-way: the
// gateway pushes event frames; commands go through the HTTP API.
type Frame struct {
	Type    FrameType       `json:"type"`
	Event   string          `json:"event,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame creates a Frame for broadcasting an event.
func NewEventFrame(event, taskID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		TaskID:  taskID,
		Payload: data,
	}, nil
}
