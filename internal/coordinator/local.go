package coordinator

import (
	"context"

	"nexochat/backend/internal/conversation"
	"nexochat/backend/internal/message"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/notification"
	"nexochat/backend/internal/realtime"
)

// Local is a Backend that calls the services in-process on behalf of one
// user. The HTTP client in package client is its remote counterpart.
type Local struct {
	userID        string
	conversations *conversation.Store
	messages      *message.Channel
	notifications *notification.Fanout
}

func NewLocal(userID string, conversations *conversation.Store, messages *message.Channel, notifications *notification.Fanout) *Local {
	return &Local{
		userID:        userID,
		conversations: conversations,
		messages:      messages,
		notifications: notifications,
	}
}

func (l *Local) UserID() string { return l.userID }

func (l *Local) ListMessages(ctx context.Context, conversationID string) ([]models.MessageView, error) {
	if _, err := l.conversations.GetForParticipant(ctx, conversationID, l.userID); err != nil {
		return nil, err
	}
	return l.messages.List(ctx, conversationID)
}

func (l *Local) SendMessage(ctx context.Context, out models.OutgoingMessage) (*models.Message, error) {
	out.SenderID = l.userID
	return l.messages.Send(ctx, out)
}

func (l *Local) WatchMessages(ctx context.Context, conversationID string, onChange func()) (Stream, error) {
	if _, err := l.conversations.GetForParticipant(ctx, conversationID, l.userID); err != nil {
		return nil, err
	}
	return stream(l.messages.Watch(ctx, conversationID, func(models.ChangeEvent) { onChange() }))
}

func (l *Local) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	return l.conversations.List(ctx, l.userID)
}

func (l *Local) StartConversation(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	return l.conversations.FindOrCreate(ctx, l.userID, otherUserID)
}

func (l *Local) DeleteConversation(ctx context.Context, conversationID string) error {
	return l.conversations.Delete(ctx, l.userID, conversationID)
}

func (l *Local) WatchConversations(ctx context.Context, onChange func()) (Stream, error) {
	return stream(l.conversations.Subscribe(ctx, l.userID, func(models.ChangeEvent) { onChange() }))
}

func (l *Local) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	return l.notifications.List(ctx, l.userID, limit)
}

func (l *Local) UnreadCount(ctx context.Context) (int64, error) {
	return l.notifications.UnreadCount(ctx, l.userID)
}

func (l *Local) MarkRead(ctx context.Context, notificationID uint) error {
	_, err := l.notifications.MarkRead(ctx, l.userID, notificationID)
	return err
}

func (l *Local) MarkAllRead(ctx context.Context) (int64, error) {
	return l.notifications.MarkAllRead(ctx, l.userID)
}

func (l *Local) WatchNotifications(ctx context.Context, onChange func()) (Stream, error) {
	return stream(l.notifications.Watch(ctx, l.userID, func(models.ChangeEvent) { onChange() }))
}

// stream keeps a nil *Listener from turning into a non-nil Stream.
func stream(l *realtime.Listener, err error) (Stream, error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}
