package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeSystem MessageType = "system"
)

// IsValid returns true if the type is a recognized value.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeSystem:
		return true
	}
	return false
}

// MaxMessageLength caps message content, in runes.
const MaxMessageLength = 2000

// Message is a chat line between the requester and the assigned provider.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	RequestID   uuid.UUID   `json:"request_id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	SenderRole  Role        `json:"sender_role"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SendMessageParams contains the input for a new message.
type SendMessageParams struct {
	RequestID   uuid.UUID
	MessageType MessageType
	Content     string
}
