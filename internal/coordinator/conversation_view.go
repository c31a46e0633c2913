package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"nexochat/backend/internal/models"

	"github.com/google/uuid"
)

// EntryState tells a confirmed message from an optimistic one.
type EntryState int

const (
	Confirmed EntryState = iota
	Pending
)

// Entry is one row of a ConversationView.
type Entry struct {
	State   EntryState
	Message models.MessageView
}

// ConversationView is the live, ordered message list of one conversation.
type ConversationView struct {
	*Coordinator[[]models.MessageView]

	backend        MessageBackend
	conversationID string
	viewerID       string

	mu        sync.RWMutex
	confirmed []models.MessageView
	pending   []models.MessageView
}

func NewConversationView(backend MessageBackend, conversationID, viewerID string, opts Options) *ConversationView {
	v := &ConversationView{
		backend:        backend,
		conversationID: conversationID,
		viewerID:       viewerID,
	}
	src := SourceFuncs[[]models.MessageView]{
		FetchFunc: func(ctx context.Context) ([]models.MessageView, error) {
			return backend.ListMessages(ctx, conversationID)
		},
		SubscribeFunc: func(ctx context.Context, onChange func()) (Stream, error) {
			return backend.WatchMessages(ctx, conversationID, onChange)
		},
	}
	v.Coordinator = New[[]models.MessageView]("conversation "+conversationID, src, v, opts)
	return v
}

func (v *ConversationView) ConversationID() string { return v.conversationID }

// Replace installs a fetched snapshot. Pending entries whose message is now
// part of the snapshot are dropped so a sent message appears exactly once.
func (v *ConversationView) Replace(msgs []models.MessageView) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.confirmed = msgs
	if len(v.pending) == 0 {
		return
	}
	refs := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if m.ClientRef != "" {
			refs[m.ClientRef] = struct{}{}
		}
	}
	kept := v.pending[:0]
	for _, p := range v.pending {
		if _, ok := refs[p.ClientRef]; !ok {
			kept = append(kept, p)
		}
	}
	v.pending = kept
}

func (v *ConversationView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = nil
	v.pending = nil
}

// Entries returns confirmed messages in order followed by pending sends.
func (v *ConversationView) Entries() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Entry, 0, len(v.confirmed)+len(v.pending))
	for _, m := range v.confirmed {
		out = append(out, Entry{State: Confirmed, Message: m})
	}
	for _, m := range v.pending {
		out = append(out, Entry{State: Pending, Message: m})
	}
	return out
}

// Messages returns only the confirmed messages.
func (v *ConversationView) Messages() []models.MessageView {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.MessageView(nil), v.confirmed...)
}

// Send shows the message immediately as pending, then stores it. The
// pending entry is replaced by the stored message on the next refetch, or
// removed if the send fails.
func (v *ConversationView) Send(ctx context.Context, content string, kind models.MessageKind) (*models.Message, error) {
	ref := uuid.NewString()
	optimistic := models.MessageView{
		Message: models.Message{
			ConversationID: v.conversationID,
			SenderID:       v.viewerID,
			Content:        strings.TrimSpace(content),
			Kind:           kind,
			ClientRef:      ref,
			CreatedAt:      time.Now().UTC(),
		},
		Sender: models.ProfileCompact{ID: v.viewerID},
	}
	v.Update(func() {
		v.mu.Lock()
		v.pending = append(v.pending, optimistic)
		v.mu.Unlock()
	})

	msg, err := v.backend.SendMessage(ctx, models.OutgoingMessage{
		ConversationID: v.conversationID,
		SenderID:       v.viewerID,
		Content:        content,
		Kind:           kind,
		ClientRef:      ref,
	})
	if err != nil {
		v.Update(func() { v.dropPending(ref) })
		return nil, err
	}

	v.Refresh()
	return msg, nil
}

func (v *ConversationView) dropPending(ref string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.pending {
		if p.ClientRef == ref {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}
