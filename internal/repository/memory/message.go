package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type messageRepository struct {
	s *Store
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[message.RoomID]; !ok {
		return apperrors.ErrRoomNotFound
	}
	if _, ok := r.s.messages[message.ID]; ok {
		return apperrors.ErrConflict
	}

	stored := *message
	stored.User = nil
	stored.File = nil
	r.s.messages[stored.ID] = &stored

	list := r.s.byRoom[stored.RoomID]
	i := sort.Search(len(list), func(i int) bool { return stored.Less(list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &stored
	r.s.byRoom[stored.RoomID] = list

	r.s.onRollback(ctx, func() {
		delete(r.s.messages, stored.ID)
		cur := r.s.byRoom[stored.RoomID]
		for j, m := range cur {
			if m == &stored {
				r.s.byRoom[stored.RoomID] = append(cur[:j:j], cur[j+1:]...)
				break
			}
		}
	})
	return nil
}

func (r *messageRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return r.s.hydrate(m), nil
}

func (r *messageRepository) Page(_ context.Context, q domain.PageQuery) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	list := r.s.byRoom[q.RoomID]
	out := make([]*domain.Message, 0, q.Limit)

	if q.Direction == domain.DirectionNewer {
		for _, m := range list {
			if len(out) == q.Limit {
				break
			}
			if q.Cursor == nil || q.Cursor.Compare(m) > 0 {
				out = append(out, r.s.hydrate(m))
			}
		}
		return out, nil
	}

	for i := len(list) - 1; i >= 0 && len(out) < q.Limit; i-- {
		if q.Cursor == nil || q.Cursor.Compare(list[i]) < 0 {
			out = append(out, r.s.hydrate(list[i]))
		}
	}
	return out, nil
}

// hydrate copies m and attaches author and latest attachment. Expects s.mu held.
func (s *Store) hydrate(m *domain.Message) *domain.Message {
	out := *m
	if out.UserID != nil {
		if u, ok := s.users[*out.UserID]; ok {
			out.User = u.Author()
		}
	}
	var latest *domain.FileAttachment
	for _, f := range s.files {
		if f.MessageID == out.ID && (latest == nil || f.ID > latest.ID) {
			latest = f
		}
	}
	if latest != nil {
		f := *latest
		out.File = &f
	}
	return &out
}
