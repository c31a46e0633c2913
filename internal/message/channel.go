// Package message sends and lists conversation messages and streams new ones
// to live subscribers.
package message

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/blocking"
	"nexochat/backend/internal/catalog"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/conversation"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

var (
	ErrEmptyMessage = apperror.InvalidArg("message content cannot be empty")
	ErrTooLong      = apperror.Newf(apperror.CodeInvalidArgument,
		"message content exceeds %d characters", config.MaxMessageLength)
	ErrNotParticipant = apperror.Forbidden("not a participant of this conversation")
)

// InsertListener is called in-process after a message has been committed.
type InsertListener func(ctx context.Context, msg *models.Message, conv *models.Conversation)

type Channel struct {
	db            *gorm.DB
	conversations *conversation.Store
	blocks        *blocking.Registry
	directory     *directory.Service
	broker        realtime.Broker

	mu        sync.RWMutex
	listeners []InsertListener
}

func NewChannel(db *gorm.DB, conversations *conversation.Store, blocks *blocking.Registry,
	dir *directory.Service, broker realtime.Broker) *Channel {
	return &Channel{
		db:            db,
		conversations: conversations,
		blocks:        blocks,
		directory:     dir,
		broker:        broker,
	}
}

// OnInsert registers fn to run after every committed Send.
func (c *Channel) OnInsert(fn InsertListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Send validates and stores a message, then bumps the conversation. Both
// writes share one transaction. Events are published and insert listeners
// run only after commit.
func (c *Channel) Send(ctx context.Context, out models.OutgoingMessage) (*models.Message, error) {
	msg, err := validate(out)
	if err != nil {
		return nil, err
	}

	var (
		conv      *models.Conversation
		duplicate bool
	)
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := c.conversations.WithTx(tx)

		cv, err := store.Get(ctx, msg.ConversationID)
		if err != nil {
			return err
		}
		if !cv.HasParticipant(msg.SenderID) {
			return ErrNotParticipant
		}
		blocked, err := c.blocks.WithTx(tx).IsBlocked(ctx, cv.Participant1ID, cv.Participant2ID)
		if err != nil {
			return err
		}
		if blocked {
			return blocking.ErrBlocked
		}

		if msg.ClientRef != "" {
			var existing []models.Message
			err := tx.Where("conversation_id = ? AND sender_id = ? AND client_ref = ?",
				msg.ConversationID, msg.SenderID, msg.ClientRef).Limit(1).Find(&existing).Error
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				// Retry of an already committed send.
				*msg = existing[0]
				duplicate = true
				return nil
			}
		}

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		at, err := store.Touch(ctx, cv.ID)
		if err != nil {
			return err
		}
		cv.UpdatedAt, cv.LastInteractionAt = at, at
		conv = cv
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	if duplicate {
		return msg, nil
	}

	jww.DEBUG.Printf("Message %d stored in conversation %s", msg.ID, conv.ID)
	realtime.Emit(ctx, c.broker, models.TableMessages, models.ChangeInsert,
		strconv.FormatUint(uint64(msg.ID), 10), msg, realtime.MessagesTopic(conv.ID))
	c.conversations.Emit(ctx, models.ChangeUpdate, conv)
	c.notify(context.WithoutCancel(ctx), msg, conv)
	return msg, nil
}

func validate(out models.OutgoingMessage) (*models.Message, error) {
	if strings.TrimSpace(out.ConversationID) == "" || strings.TrimSpace(out.SenderID) == "" {
		return nil, apperror.InvalidArg("conversation and sender are required")
	}

	kind := out.Kind
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return nil, apperror.Newf(apperror.CodeInvalidArgument, "unknown message type %q", kind)
	}

	content := strings.TrimSpace(out.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > config.MaxMessageLength {
		return nil, ErrTooLong
	}
	switch kind {
	case models.KindSticker:
		if err := catalog.ValidateSticker(content); err != nil {
			return nil, err
		}
	case models.KindGIF:
		if err := catalog.ValidateGIF(content); err != nil {
			return nil, err
		}
	}

	return &models.Message{
		ConversationID: out.ConversationID,
		SenderID:       out.SenderID,
		Content:        content,
		Kind:           kind,
		ClientRef:      strings.TrimSpace(out.ClientRef),
	}, nil
}

func (c *Channel) notify(ctx context.Context, msg *models.Message, conv *models.Conversation) {
	c.mu.RLock()
	listeners := append([]InsertListener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, msg, conv)
	}
}

// List returns the conversation's messages oldest first, with sender profiles.
func (c *Channel) List(ctx context.Context, conversationID string) ([]models.MessageView, error) {
	var msgs []models.Message
	err := c.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}

	senders := make([]string, len(msgs))
	for i := range msgs {
		senders[i] = msgs[i].SenderID
	}
	profiles, err := c.directory.Compact(ctx, senders...)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, len(msgs))
	for i, m := range msgs {
		sender, ok := profiles[m.SenderID]
		if !ok {
			sender = models.ProfileCompact{ID: m.SenderID}
		}
		views[i] = models.MessageView{Message: m, Sender: sender}
	}
	return views, nil
}

// Subscribe calls onInsert for every message committed to the conversation
// from now on.
func (c *Channel) Subscribe(ctx context.Context, conversationID string, onInsert func(models.Message)) (*realtime.Listener, error) {
	return c.Watch(ctx, conversationID, func(ev models.ChangeEvent) {
		if ev.Table != models.TableMessages || ev.Type != models.ChangeInsert {
			return
		}
		var m models.Message
		if err := ev.Decode(&m); err != nil {
			jww.ERROR.Printf("ERROR: Failed to decode message event %s: %v", ev.RecordID, err)
			return
		}
		onInsert(m)
	})
}

// Watch calls fn for every event on the conversation's message stream,
// including the deletion of the conversation itself.
func (c *Channel) Watch(ctx context.Context, conversationID string, fn func(models.ChangeEvent)) (*realtime.Listener, error) {
	sub, err := c.broker.Subscribe(ctx, realtime.MessagesTopic(conversationID))
	if err != nil {
		return nil, err
	}
	return realtime.Listen(sub, fn), nil
}
