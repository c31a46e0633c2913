package coordinator

import (
	"context"
	"sync"

	"nexochat/backend/internal/models"
)

// ConversationList is the live list of the user's conversations, most
// recently active first.
type ConversationList struct {
	*Coordinator[[]models.ConversationSummary]

	backend ConversationBackend

	mu    sync.RWMutex
	items []models.ConversationSummary
}

func NewConversationList(backend ConversationBackend, opts Options) *ConversationList {
	l := &ConversationList{backend: backend}
	src := SourceFuncs[[]models.ConversationSummary]{
		FetchFunc:     backend.ListConversations,
		SubscribeFunc: backend.WatchConversations,
	}
	l.Coordinator = New[[]models.ConversationSummary]("conversations", src, l, opts)
	return l
}

func (l *ConversationList) Replace(items []models.ConversationSummary) {
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

func (l *ConversationList) Reset() { l.Replace(nil) }

func (l *ConversationList) Items() []models.ConversationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.ConversationSummary(nil), l.items...)
}

// StartWith opens (or finds) a conversation with otherUserID.
func (l *ConversationList) StartWith(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	c, err := l.backend.StartConversation(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	l.Refresh()
	return c, nil
}

func (l *ConversationList) Delete(ctx context.Context, conversationID string) error {
	if err := l.backend.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	l.Update(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, it := range l.items {
			if it.ID == conversationID {
				l.items = append(l.items[:i:i], l.items[i+1:]...)
				return
			}
		}
	})
	return nil
}
