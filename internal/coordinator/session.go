package coordinator

import (
	"context"
	"sync"

	"nexochat/backend/internal/apperror"
)

// Session holds the projections of one signed-in user: the conversation
// list, the notification center and at most one open conversation.
type Session struct {
	backend Backend
	opts    Options

	Conversations *ConversationList
	Notifications *NotificationCenter

	mu     sync.Mutex
	active *ConversationView
	closed bool
}

// Mount starts the conversation list and the notification center. If either
// fails to start, both are closed and the error is returned.
func Mount(ctx context.Context, backend Backend, opts Options) (*Session, error) {
	s := &Session{
		backend:       backend,
		opts:          opts,
		Conversations: NewConversationList(backend, opts),
		Notifications: NewNotificationCenter(backend, opts),
	}
	if err := s.Conversations.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Notifications.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open switches the session to conversationID. The previously open view is
// closed first, so its data is never shown under the new conversation.
func (s *Session) Open(ctx context.Context, conversationID string) (*ConversationView, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperror.Unavailable("session is closed")
	}
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	v := NewConversationView(s.backend, conversationID, s.backend.UserID(), s.opts)
	if err := v.Start(ctx); err != nil {
		v.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active != nil {
		// Closed or reopened concurrently.
		v.Close()
		return nil, apperror.Unavailable("conversation was replaced")
	}
	s.active = v
	return v, nil
}

// Active returns the open conversation view, or nil.
func (s *Session) Active() *ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CloseConversation closes the open conversation view, if any.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	v := s.active
	s.active = nil
	s.mu.Unlock()
	if v != nil {
		v.Close()
	}
}

// Close releases every projection. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.CloseConversation()
	s.Conversations.Close()
	s.Notifications.Close()
}
