// Package conversation stores 1-on-1 conversations and builds each user's
// conversation list.
package conversation

import (
	"context"
	"strings"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/blocking"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/localization"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

type Store struct {
	db        *gorm.DB
	directory *directory.Service
	blocks    *blocking.Registry
	broker    realtime.Broker
	loc       *localization.Localizer
	lang      string
}

func NewStore(db *gorm.DB, dir *directory.Service, blocks *blocking.Registry,
	broker realtime.Broker, loc *localization.Localizer, lang string) *Store {
	return &Store{
		db:        db,
		directory: dir,
		blocks:    blocks,
		broker:    broker,
		loc:       loc,
		lang:      lang,
	}
}

// WithTx returns a Store whose queries run inside tx. It does not publish.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	cp := *s
	cp.db = tx
	cp.directory = s.directory.WithTx(tx)
	cp.blocks = s.blocks.WithTx(tx)
	cp.broker = nil
	return &cp
}

// FindOrCreate returns the conversation between a and b, creating it if
// needed. Argument order does not matter for lookup.
func (s *Store) FindOrCreate(ctx context.Context, a, b string) (*models.Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, apperror.InvalidArg("both participants are required")
	}
	if a == b {
		return nil, apperror.InvalidArg("cannot start a conversation with yourself")
	}

	ok, err := s.directory.Exists(ctx, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("profile not found")
	}

	blocked, err := s.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, blocking.ErrBlocked
	}

	if c, err := s.byPair(ctx, a, b); err == nil {
		return c, nil
	} else if !apperror.Is(err, apperror.CodeNotFound) {
		return nil, err
	}

	c := &models.Conversation{Participant1ID: a, Participant2ID: b}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		err = apperror.FromDB(err, "conversation")
		if !apperror.Is(err, apperror.CodeConflict) {
			return nil, err
		}
		// Lost a race with a concurrent create for the same pair.
		return s.byPair(ctx, a, b)
	}

	jww.INFO.Printf("Conversation %s created between %s and %s", c.ID, a, b)
	s.emit(ctx, models.ChangeInsert, c)
	return c, nil
}

func (s *Store) byPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.WithContext(ctx).First(&c, "pair_key = ?", models.PairKey(a, b)).Error
	if err != nil {
		return nil, apperror.FromDB(err, "conversation")
	}
	return &c, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, "conversation")
	}
	return &c, nil
}

// GetForParticipant is Get restricted to the conversation's participants.
func (s *Store) GetForParticipant(ctx context.Context, id, userID string) (*models.Conversation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, apperror.Forbidden("not a participant of this conversation")
	}
	return c, nil
}

// Touch moves the conversation's activity timestamps to now and returns the
// new value.
func (s *Store) Touch(ctx context.Context, id string) (time.Time, error) {
	now := s.db.NowFunc()
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"updated_at":          now,
			"last_interaction_at": now,
		})
	if res.Error != nil {
		return time.Time{}, apperror.FromDB(res.Error, "conversation")
	}
	if res.RowsAffected == 0 {
		return time.Time{}, apperror.NotFound("conversation not found")
	}
	return now, nil
}

// Delete removes the conversation and all its messages. Only participants
// may delete.
func (s *Store) Delete(ctx context.Context, actorID, id string) error {
	c, err := s.GetForParticipant(ctx, id, actorID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return errors.Wrap(err, "delete messages")
		}
		res := tx.Delete(&models.Conversation{}, "id = ?", id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete conversation")
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("conversation not found")
		}
		return nil
	})
	if err != nil {
		return apperror.FromDB(err, "conversation")
	}

	jww.INFO.Printf("Conversation %s deleted by %s", id, actorID)
	s.emit(ctx, models.ChangeDelete, c)
	realtime.Emit(ctx, s.broker, models.TableConversations, models.ChangeDelete, c.ID, c,
		realtime.MessagesTopic(c.ID))
	return nil
}

// List returns userID's conversations, most recently active first, each with
// the other participant, the latest message and a preview line.
func (s *Store) List(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("participant1_id = ? OR participant2_id = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&convs).Error
	if err != nil {
		return nil, apperror.FromDB(err, "conversation")
	}

	others := make([]string, len(convs))
	for i := range convs {
		others[i] = convs[i].OtherParticipant(userID)
	}
	profiles, err := s.directory.Compact(ctx, others...)
	if err != nil {
		return nil, err
	}

	out := make([]models.ConversationSummary, len(convs))
	for i, c := range convs {
		last, err := s.lastMessage(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		other, ok := profiles[others[i]]
		if !ok {
			other = models.ProfileCompact{ID: others[i]}
		}
		out[i] = models.ConversationSummary{
			Conversation: c,
			OtherUser:    other,
			LastMessage:  last,
			Preview:      s.preview(last, userID),
		}
	}
	return out, nil
}

func (s *Store) lastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&msgs).Error
	if err != nil {
		return nil, apperror.FromDB(err, "message")
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func (s *Store) preview(last *models.Message, viewerID string) string {
	if last == nil {
		return s.loc.GetString(s.lang, localization.KeyPreviewEmpty)
	}

	var body string
	switch last.Kind {
	case models.KindGIF:
		body = s.loc.GetString(s.lang, localization.KeyPreviewGIF)
	case models.KindSticker:
		body = s.loc.Format(s.lang, localization.KeyPreviewSticker, last.Content)
	default:
		body = last.Content
	}

	if last.SenderID == viewerID {
		return s.loc.Format(s.lang, localization.KeyPreviewOwn, body)
	}
	return body
}

// Subscribe calls fn for every change to userID's conversations.
func (s *Store) Subscribe(ctx context.Context, userID string, fn func(models.ChangeEvent)) (*realtime.Listener, error) {
	sub, err := s.broker.Subscribe(ctx, realtime.ConversationsTopic(userID))
	if err != nil {
		return nil, err
	}
	return realtime.Listen(sub, fn), nil
}

// Emit publishes a change to both participants' conversation streams.
func (s *Store) Emit(ctx context.Context, typ models.ChangeType, c *models.Conversation) {
	s.emit(ctx, typ, c)
}

func (s *Store) emit(ctx context.Context, typ models.ChangeType, c *models.Conversation) {
	realtime.Emit(ctx, s.broker, models.TableConversations, typ, c.ID, c,
		realtime.ConversationsTopic(c.Participant1ID),
		realtime.ConversationsTopic(c.Participant2ID))
}
