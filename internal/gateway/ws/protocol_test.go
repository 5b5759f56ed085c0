package ws

import (
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	frame, err := NewEventFrame("task.completed", "task-abc", map[string]any{"cursor": 3})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}

	data, err := MarshalFrame(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != FrameTypeEvent {
		t.Errorf("type = %q, want %q", got.Type, FrameTypeEvent)
	}
	if got.Event != "task.completed" || got.TaskID != "task-abc" {
		t.Errorf("got event %q task %q", got.Event, got.TaskID)
	}

	var payload map[string]int
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["cursor"] != 3 {
		t.Errorf("cursor = %d, want 3", payload["cursor"])
	}
}

func TestNewEventFrameRejectsBadPayload(t *testing.T) {
	if _, err := NewEventFrame("task.failed", "task-abc", func() {}); err == nil {
		t.Fatal("expected error for unmarshalable payload")
	}
}

func TestUnmarshalFrameInvalid(t *testing.T) {
	if _, err := UnmarshalFrame([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}
