package client

import (
	"slices"

	"github.com/google/uuid"

	"room_chat/internal/domain"
)

// MessageList is a room timeline sorted by (created_at, id) with no
// duplicate ids. It is not safe for concurrent use; the Controller guards it.
type MessageList struct {
	items []*domain.Message
	ids   map[uuid.UUID]struct{}
}

func NewMessageList() *MessageList {
	return &MessageList{ids: make(map[uuid.UUID]struct{})}
}

func compareMessages(a, b *domain.Message) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Insert adds msg unless its id is already present and reports whether the
// list changed. Live messages land on the append fast path.
func (l *MessageList) Insert(msg *domain.Message) bool {
	if msg == nil {
		return false
	}
	if _, ok := l.ids[msg.ID]; ok {
		return false
	}
	l.ids[msg.ID] = struct{}{}

	if n := len(l.items); n == 0 || l.items[n-1].Less(msg) {
		l.items = append(l.items, msg)
		return true
	}
	i, _ := slices.BinarySearchFunc(l.items, msg, compareMessages)
	l.items = slices.Insert(l.items, i, msg)
	return true
}

// Upsert inserts msg, or replaces the stored copy when msg carries an
// attachment the stored one lacks.
func (l *MessageList) Upsert(msg *domain.Message) bool {
	if msg == nil {
		return false
	}
	if _, ok := l.ids[msg.ID]; !ok {
		return l.Insert(msg)
	}
	i, found := slices.BinarySearchFunc(l.items, msg, compareMessages)
	if !found || l.items[i].ID != msg.ID {
		return false
	}
	if msg.File == nil || l.items[i].File != nil {
		return false
	}
	l.items[i] = msg
	return true
}

func (l *MessageList) Contains(id uuid.UUID) bool {
	_, ok := l.ids[id]
	return ok
}

func (l *MessageList) Len() int {
	return len(l.items)
}

func (l *MessageList) First() *domain.Message {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

func (l *MessageList) Last() *domain.Message {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[len(l.items)-1]
}

// Snapshot returns a copy of the ordered messages.
func (l *MessageList) Snapshot() []*domain.Message {
	return slices.Clone(l.items)
}
