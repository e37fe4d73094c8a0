package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxRoomNameLength        = 255
	MaxRoomDescriptionLength = 2000
)

type Room struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	IsPrivate      bool      `json:"is_private"`
	AllowAnonymous bool      `json:"allow_anonymous"`
	CreatedBy      uuid.UUID `json:"created_by"`
	MembersCount   int       `json:"members_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Membership is one (room, user) row. At most one row per pair is active.
type Membership struct {
	ID            int64      `json:"id"`
	RoomID        uuid.UUID  `json:"room_id"`
	UserID        uuid.UUID  `json:"user_id"`
	JoinedAt      time.Time  `json:"joined_at"`
	AbandonmentIn *time.Time `json:"abandonment_in,omitempty"`
}

func (m *Membership) Active() bool {
	return m != nil && m.AbandonmentIn == nil
}

// Member is an active member as listed to clients.
type Member struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	IsAnonymous bool      `json:"is_anonymous"`
	JoinedAt    time.Time `json:"joined_at"`
}

// NormalizeRoomName trims the name and checks its length.
func NormalizeRoomName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= MaxRoomNameLength
}
