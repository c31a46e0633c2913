package models

import "time"

const NotificationKindMessage = "message"

// Notification is owned by its recipient and invisible to anyone else.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index:idx_notification_user,priority:1" json:"user_id"`
	Kind      string    `gorm:"column:type;not null;default:message" json:"type"`
	Title     string    `gorm:"not null" json:"title"`
	Body      string    `gorm:"column:message;type:text" json:"message"`
	RelatedID string    `json:"related_id,omitempty"` // Conversation ID for message notifications
	IsRead    bool      `gorm:"not null;default:false;index:idx_notification_user,priority:2" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
