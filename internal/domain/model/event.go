package model

import (
	"encoding/json"
	"time"
)

// EventType names a notable behavioral signal.
type EventType string

const (
	EventPasteDetected EventType = "paste_detected"
	EventCopyDetected  EventType = "copy_detected"
	EventFocusLost     EventType = "focus_lost"
	EventFocusGained   EventType = "focus_gained"
	EventIdleDetected  EventType = "idle_detected"
)

var notableEvents = map[EventType]struct{}{
	EventPasteDetected: {},
	EventCopyDetected:  {},
	EventFocusLost:     {},
	EventFocusGained:   {},
	EventIdleDetected:  {},
}

// NotableEventTypes returns the allow-list in a stable order.
func NotableEventTypes() []EventType {
	return []EventType{EventPasteDetected, EventCopyDetected, EventFocusLost, EventFocusGained, EventIdleDetected}
}

// IsNotable reports whether t belongs to the activity-log allow-list.
func (t EventType) IsNotable() bool {
	_, ok := notableEvents[t]
	return ok
}

// NotableEvent is one entry of the recent-activity log.
type NotableEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// MessageType is the type field of a push message.
type MessageType string

const (
	MessageEventLogged         MessageType = "event_logged"
	MessageMetricsUpdate       MessageType = "metrics_update"
	MessageStatusUpdate        MessageType = "status_update"
	MessageAssessmentCompleted MessageType = "assessment_completed"
)

// PushMessage is a decoded message from a session's push channel.
type PushMessage struct {
	Type      MessageType     `json:"type"`
	EventType EventType       `json:"event_type,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NotableEvent converts an event_logged message into a log entry.
func (m PushMessage) NotableEvent() NotableEvent {
	return NotableEvent{
		ID:        m.EventID,
		Type:      m.EventType,
		Timestamp: m.Timestamp,
		Payload:   m.Payload,
	}
}
