package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the presence a user advertises to their contacts.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known presence values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Profile is the public identity of a user. Rows are written by the account
// provider; this service only reads them (and provisions them from the admin CLI).
type Profile struct {
	ID          string    `gorm:"primaryKey" json:"id"`                  // UUID
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`     // Unique login email
	DisplayName string    `json:"display_name,omitempty"`                // Optional, see Name
	AvatarURL   string    `json:"avatar_url,omitempty"`                  // Optional
	Status      Status    `gorm:"not null;default:online" json:"status"` // Presence
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that assigns a new UUID when the ID is empty.
func (p *Profile) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = StatusOnline
	}
	return
}

// Name is the label shown to other users: the display name when set,
// otherwise the local part of the email.
func (p *Profile) Name() string {
	return DisplayNameFor(p.DisplayName, p.Email)
}

// Compact returns the subset of the profile embedded in list views.
func (p *Profile) Compact() ProfileCompact {
	return ProfileCompact{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Status:      p.Status,
	}
}

// ProfileCompact is the profile as embedded in conversations, messages and block lists.
type ProfileCompact struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Status      Status `json:"status"`
}

func (p ProfileCompact) Name() string {
	return DisplayNameFor(p.DisplayName, p.Email)
}

// DisplayNameFor applies the display name rule to raw fields.
func DisplayNameFor(displayName, email string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
