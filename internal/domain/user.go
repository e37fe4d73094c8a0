package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxDisplayNameLength = 100

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsAnonymous  bool      `json:"is_anonymous"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is who is calling, as carried by an access token.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	IsGuest     bool      `json:"is_guest"`
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.Name, IsGuest: u.IsAnonymous}
}

// Author is the display projection attached to hydrated messages.
func (u *User) Author() *MessageAuthor {
	return &MessageAuthor{ID: u.ID, Name: u.Name}
}

type UserSession struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	RefreshTokenHash string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokedReason    *string    `json:"revoked_reason,omitempty"`
}

func (s *UserSession) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
