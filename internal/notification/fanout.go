// Package notification turns message inserts into per-recipient
// notifications and manages their read state.
package notification

import (
	"context"
	"strconv"
	"unicode/utf8"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/localization"
	"nexochat/backend/internal/models"
	"nexochat/backend/internal/realtime"

	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

type Fanout struct {
	db        *gorm.DB
	directory *directory.Service
	broker    realtime.Broker
	loc       *localization.Localizer
	lang      string
}

func NewFanout(db *gorm.DB, dir *directory.Service, broker realtime.Broker,
	loc *localization.Localizer, lang string) *Fanout {
	return &Fanout{db: db, directory: dir, broker: broker, loc: loc, lang: lang}
}

// OnMessageInserted is registered as a message insert listener. The message
// is already committed, so failures are logged and never reach the sender.
func (f *Fanout) OnMessageInserted(ctx context.Context, msg *models.Message, conv *models.Conversation) {
	if _, err := f.Notify(ctx, msg, conv); err != nil {
		jww.ERROR.Printf("ERROR: Failed to notify about message %d in conversation %s: %v",
			msg.ID, conv.ID, err)
	}
}

// Notify creates the recipient's notification for msg.
func (f *Fanout) Notify(ctx context.Context, msg *models.Message, conv *models.Conversation) (*models.Notification, error) {
	if !conv.HasParticipant(msg.SenderID) {
		return nil, apperror.Forbidden("sender is not a participant")
	}
	recipient := conv.OtherParticipant(msg.SenderID)

	senderName := msg.SenderID
	profiles, err := f.directory.Compact(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	if p, ok := profiles[msg.SenderID]; ok {
		senderName = p.Name()
	}

	n := &models.Notification{
		UserID:    recipient,
		Kind:      models.NotificationKindMessage,
		Title:     f.loc.Format(f.lang, localization.KeyNotificationTitle, senderName),
		Body:      Truncate(msg.Content),
		RelatedID: conv.ID,
	}
	if err := f.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, apperror.FromDB(err, "notification")
	}

	f.emit(ctx, models.ChangeInsert, strconv.FormatUint(uint64(n.ID), 10), n, recipient)
	return n, nil
}

// Truncate shortens s to NotificationBodyLimit characters followed by an
// ellipsis. Shorter strings are returned unchanged.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= config.NotificationBodyLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:config.NotificationBodyLimit]) + config.NotificationEllipsis
}

// List returns userID's most recent notifications, newest first.
func (f *Fanout) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = config.DefaultNotificationLimit
	}
	if limit > config.MaxNotificationLimit {
		limit = config.MaxNotificationLimit
	}

	var out []models.Notification
	err := f.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, apperror.FromDB(err, "notification")
	}
	return out, nil
}

// MarkRead marks one of userID's notifications as read. Marking an already
// read notification succeeds without publishing.
func (f *Fanout) MarkRead(ctx context.Context, userID string, id uint) (*models.Notification, error) {
	var n models.Notification
	err := f.db.WithContext(ctx).First(&n, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, apperror.FromDB(err, "notification")
	}
	if n.IsRead {
		return &n, nil
	}

	err = f.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
	if err != nil {
		return nil, apperror.FromDB(err, "notification")
	}
	n.IsRead = true

	f.emit(ctx, models.ChangeUpdate, strconv.FormatUint(uint64(n.ID), 10), &n, userID)
	return &n, nil
}

// MarkAllRead marks every unread notification of userID as read and returns
// how many changed.
func (f *Fanout) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := f.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, apperror.FromDB(res.Error, "notification")
	}
	if res.RowsAffected > 0 {
		f.emit(ctx, models.ChangeUpdate, "*", nil, userID)
	}
	return res.RowsAffected, nil
}

func (f *Fanout) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := f.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, apperror.FromDB(err, "notification")
	}
	return n, nil
}

// Subscribe calls onInsert for every new notification of userID.
func (f *Fanout) Subscribe(ctx context.Context, userID string, onInsert func(models.Notification)) (*realtime.Listener, error) {
	return f.Watch(ctx, userID, func(ev models.ChangeEvent) {
		if ev.Type != models.ChangeInsert {
			return
		}
		var n models.Notification
		if err := ev.Decode(&n); err != nil {
			jww.ERROR.Printf("ERROR: Failed to decode notification event %s: %v", ev.RecordID, err)
			return
		}
		onInsert(n)
	})
}

// Watch calls fn for every notification change of userID, reads included.
func (f *Fanout) Watch(ctx context.Context, userID string, fn func(models.ChangeEvent)) (*realtime.Listener, error) {
	sub, err := f.broker.Subscribe(ctx, realtime.NotificationsTopic(userID))
	if err != nil {
		return nil, err
	}
	return realtime.Listen(sub, fn), nil
}

func (f *Fanout) emit(ctx context.Context, typ models.ChangeType, id string, record interface{}, userID string) {
	realtime.Emit(ctx, f.broker, models.TableNotifications, typ, id, record,
		realtime.NotificationsTopic(userID))
}
