package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a 1-on-1 thread between two users. At most one exists per
// unordered pair, enforced by the unique PairKey.
type Conversation struct {
	// ID is the unique identifier of the conversation (UUID).
	ID string `gorm:"primaryKey" json:"id"`
	// Participant1ID is the user who started the conversation.
	Participant1ID string `gorm:"not null;index" json:"participant1_id"`
	// Participant2ID is the other user.
	Participant2ID string `gorm:"not null;index" json:"participant2_id"`
	// PairKey is both participant IDs sorted and joined with ':'.
	PairKey string `gorm:"not null;uniqueIndex" json:"-"`
	// CreatedAt is when the conversation was opened.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt moves forward on every message and orders the conversation list.
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
	// LastInteractionAt mirrors UpdatedAt for message activity only.
	LastInteractionAt time.Time `json:"last_interaction_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate is a GORM hook that fills the ID and the pair key.
func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.PairKey = PairKey(c.Participant1ID, c.Participant2ID)
	return
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participant1ID == userID || c.Participant2ID == userID)
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// PairKey is the order-independent key of a pair of users.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	OtherUser   ProfileCompact `json:"other_user"`
	LastMessage *Message       `json:"last_message"`
	Preview     string         `json:"preview"`
}
