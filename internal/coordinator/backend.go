package coordinator

import (
	"context"

	"nexochat/backend/internal/models"
)

// MessageBackend is what a ConversationView needs from the server.
type MessageBackend interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.MessageView, error)
	SendMessage(ctx context.Context, out models.OutgoingMessage) (*models.Message, error)
	WatchMessages(ctx context.Context, conversationID string, onChange func()) (Stream, error)
}

// ConversationBackend is what a ConversationList needs from the server.
type ConversationBackend interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	StartConversation(ctx context.Context, otherUserID string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	WatchConversations(ctx context.Context, onChange func()) (Stream, error)
}

// NotificationBackend is what a NotificationCenter needs from the server.
type NotificationBackend interface {
	ListNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, notificationID uint) error
	MarkAllRead(ctx context.Context) (int64, error)
	WatchNotifications(ctx context.Context, onChange func()) (Stream, error)
}

// Backend is the full server surface used by a Session. Implementations act
// on behalf of one signed-in user.
type Backend interface {
	MessageBackend
	ConversationBackend
	NotificationBackend
	UserID() string
}
