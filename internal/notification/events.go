// Package notification maintains live push channels per user and fans
// progress and result events out to them. Delivery is best effort: the
// durable task record is the source of truth for job status.
package notification

import (
	"time"
)

// Event types carried over push channels.
const (
	EventTypeGenerationUpdate = "book_generation_update"
	EventTypeNotification     = "notification"
	EventTypePing             = "ping"
	EventTypePong             = "pong"
)

// GenerationUpdate is the payload of a book generation progress event.
type GenerationUpdate struct {
	BookID      int64  `json:"book_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	CurrentStep string `json:"current_step"`
}

// Event is the wire frame pushed to clients. Timestamp is fractional
// seconds since the Unix epoch.
type Event struct {
	Type      string            `json:"type"`
	Timestamp float64           `json:"timestamp"`
	Data      *GenerationUpdate `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// NewGenerationUpdateEvent builds a progress event for a book generation job.
func NewGenerationUpdateEvent(update GenerationUpdate) *Event {
	return &Event{
		Type:      EventTypeGenerationUpdate,
		Timestamp: now(),
		Data:      &update,
	}
}

// NewNotificationEvent builds a free-form notification event.
func NewNotificationEvent(message string) *Event {
	return &Event{
		Type:      EventTypeNotification,
		Timestamp: now(),
		Message:   message,
	}
}

// NewPingEvent builds a keepalive ping frame.
func NewPingEvent() *Event {
	return &Event{Type: EventTypePing, Timestamp: now()}
}

// NewPongEvent builds the reply to a ping frame.
func NewPongEvent() *Event {
	return &Event{Type: EventTypePong, Timestamp: now()}
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
