package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeMessage          EventType = "message"
	EventTypeStatusChanged    EventType = "status_changed"
	EventTypeParticipantAdded EventType = "participant_added"
	EventTypeAssistantPending EventType = "assistant_pending"
	EventTypeArchived         EventType = "archived"
)

// ConversationEvent notifies hosts of a change to a conversation.
type ConversationEvent struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Type           EventType    `json:"type"`
	Message        *Message     `json:"message,omitempty"`
	Participant    *Participant `json:"participant,omitempty"`
	OldStatus      Status       `json:"old_status,omitempty"`
	NewStatus      Status       `json:"new_status,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ErrorEvent represents an error event on a stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
