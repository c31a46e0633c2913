package models

import "time"

// MessageKind tells clients how to render Content.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindSticker MessageKind = "sticker" // Content is an emoji
	KindGIF     MessageKind = "gif"     // Content is an image URL
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindSticker, KindGIF:
		return true
	}
	return false
}

// Message is an immutable entry of a conversation. The auto-increment ID
// breaks ties between messages committed in the same instant.
type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID string      `gorm:"not null;index:idx_conversation_created,priority:1" json:"conversation_id"`
	SenderID       string      `gorm:"not null" json:"sender_id"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Kind           MessageKind `gorm:"column:message_type;not null;default:text" json:"message_type"`
	// ClientRef is an optional key chosen by the sending client to match its
	// optimistic entry with the committed row.
	ClientRef string    `gorm:"index" json:"client_ref,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_conversation_created,priority:2" json:"created_at"`
}

// MessageView is a message hydrated with its sender's profile.
type MessageView struct {
	Message
	Sender ProfileCompact `json:"sender"`
}

// OutgoingMessage is a send request.
type OutgoingMessage struct {
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"message_type"`
	ClientRef      string      `json:"client_ref,omitempty"`
}
