package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Sendable reports whether a user may post a message of this type.
// System messages are only written by the server.
func (t MessageType) Sendable() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

type MessageAuthor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Message is immutable once stored. CreatedAt and ID together form its
// position in the room timeline.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	UserID    *uuid.UUID      `json:"user_id"`
	Body      string          `json:"message"`
	Type      MessageType     `json:"message_type"`
	GuestName *string         `json:"guest_name"`
	ReplyTo   *uuid.UUID      `json:"reply_to"`
	CreatedAt time.Time       `json:"created_at"`
	User      *MessageAuthor  `json:"user,omitempty"`
	File      *FileAttachment `json:"file,omitempty"`
}

// Validate checks the identity rules of a message row.
func (m *Message) Validate() error {
	if m.GuestName != nil && m.UserID != nil {
		return ErrGuestWithAuthor
	}
	if m.Type == MessageTypeSystem && (m.UserID != nil || m.GuestName != nil) {
		return ErrSystemWithAuthor
	}
	return nil
}

func (m *Message) Cursor() Cursor {
	return Cursor{Timestamp: m.CreatedAt, ID: m.ID}
}

// Less orders messages by (CreatedAt, ID).
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return bytes.Compare(m.ID[:], other.ID[:]) < 0
}

// AuthorName is the display name shown next to the message.
func (m *Message) AuthorName() string {
	switch {
	case m.User != nil:
		return m.User.Name
	case m.GuestName != nil:
		return *m.GuestName
	default:
		return ""
	}
}

// Cursor is a position in a room timeline. A zero ID makes it a
// timestamp-only cursor, compared strictly on the timestamp.
type Cursor struct {
	Timestamp time.Time `json:"timestamp"`
	ID        uuid.UUID `json:"id"`
}

// Compare returns -1, 0 or +1 as m sits before, at or after c.
// For a timestamp-only cursor every message sharing the timestamp compares as 0.
func (c Cursor) Compare(m *Message) int {
	switch {
	case m.CreatedAt.Before(c.Timestamp):
		return -1
	case m.CreatedAt.After(c.Timestamp):
		return 1
	case c.ID == uuid.Nil:
		return 0
	default:
		return bytes.Compare(m.ID[:], c.ID[:])
	}
}

type Direction string

const (
	// DirectionOlder pages backwards from the cursor, newest first.
	DirectionOlder Direction = "older"
	// DirectionNewer pages forwards from the cursor, oldest first.
	DirectionNewer Direction = "newer"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case "", DirectionOlder:
		return DirectionOlder, true
	case DirectionNewer:
		return DirectionNewer, true
	}
	return "", false
}

type PageQuery struct {
	RoomID    uuid.UUID
	Cursor    *Cursor
	Limit     int
	Direction Direction
}

// Page holds messages in the order the query direction implies.
type Page struct {
	Messages   []*Message
	HasMore    bool
	NextCursor *Cursor
}

// PageEnvelope is the wire form of a Page.
type PageEnvelope struct {
	Messages      []*Message `json:"messages"`
	HasMore       bool       `json:"has_more"`
	LastTimestamp *time.Time `json:"last_timestamp"`
	LastID        *uuid.UUID `json:"last_id"`
}

func (p *Page) Envelope() PageEnvelope {
	env := PageEnvelope{Messages: p.Messages, HasMore: p.HasMore}
	if env.Messages == nil {
		env.Messages = []*Message{}
	}
	if p.NextCursor != nil {
		ts := p.NextCursor.Timestamp
		env.LastTimestamp = &ts
		if p.NextCursor.ID != uuid.Nil {
			id := p.NextCursor.ID
			env.LastID = &id
		}
	}
	return env
}

func (e PageEnvelope) Page() *Page {
	page := &Page{Messages: e.Messages, HasMore: e.HasMore}
	if e.LastTimestamp != nil {
		c := Cursor{Timestamp: *e.LastTimestamp}
		if e.LastID != nil {
			c.ID = *e.LastID
		}
		page.NextCursor = &c
	}
	return page
}
