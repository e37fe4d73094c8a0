package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type roomRepository struct {
	s *Store
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[room.ID]; ok {
		return apperrors.ErrConflict
	}
	stored := *room
	r.s.rooms[room.ID] = &stored
	r.s.onRollback(ctx, func() { delete(r.s.rooms, room.ID) })
	return nil
}

func (r *roomRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

// GetForShare needs no lock of its own: writers that could delete the room
// are serialized by the store's transaction lock.
func (r *roomRepository) GetForShare(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	return r.GetByID(ctx, id)
}

func (r *roomRepository) get(id uuid.UUID) (*domain.Room, error) {
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	out := *room
	out.MembersCount = r.s.activeCount(id)
	return &out, nil
}

func (r *roomRepository) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.rooms[id]
	return ok, nil
}

func (r *roomRepository) Update(ctx context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.rooms[room.ID]
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	prev := *current
	current.Name = room.Name
	current.Description = room.Description
	current.IsPrivate = room.IsPrivate
	current.AllowAnonymous = room.AllowAnonymous
	current.UpdatedAt = room.UpdatedAt
	r.s.onRollback(ctx, func() { *current = prev })
	return nil
}

func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return apperrors.ErrRoomNotFound
	}

	prevMemberships := r.s.memberships
	prevMessages := r.s.byRoom[id]
	removedFiles := make(map[int64]*domain.FileAttachment)

	kept := make([]*domain.Membership, 0, len(r.s.memberships))
	for _, m := range r.s.memberships {
		if m.RoomID != id {
			kept = append(kept, m)
		}
	}
	r.s.memberships = kept
	for _, msg := range prevMessages {
		delete(r.s.messages, msg.ID)
		for fid, f := range r.s.files {
			if f.MessageID == msg.ID {
				removedFiles[fid] = f
				delete(r.s.files, fid)
			}
		}
	}
	delete(r.s.byRoom, id)
	delete(r.s.rooms, id)

	r.s.onRollback(ctx, func() {
		r.s.rooms[id] = room
		r.s.memberships = prevMemberships
		r.s.byRoom[id] = prevMessages
		for _, msg := range prevMessages {
			r.s.messages[msg.ID] = msg
		}
		for fid, f := range removedFiles {
			r.s.files[fid] = f
		}
	})
	return nil
}

func (r *roomRepository) ListPublic(_ context.Context, limit int) ([]*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rooms := make([]*domain.Room, 0)
	for id, room := range r.s.rooms {
		if room.IsPrivate {
			continue
		}
		out, _ := r.get(id)
		rooms = append(rooms, out)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].MembersCount != rooms[j].MembersCount {
			return rooms[i].MembersCount > rooms[j].MembersCount
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	if limit > 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, nil
}

func (r *roomRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type joined struct {
		room *domain.Room
		at   time.Time
	}
	var list []joined
	for _, m := range r.s.memberships {
		if m.UserID != userID || !m.Active() {
			continue
		}
		if room, err := r.get(m.RoomID); err == nil {
			list = append(list, joined{room: room, at: m.JoinedAt})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].at.After(list[j].at) })

	rooms := make([]*domain.Room, 0, len(list))
	for _, j := range list {
		rooms = append(rooms, j.room)
	}
	return rooms, nil
}

// activeCount expects s.mu held.
func (s *Store) activeCount(roomID uuid.UUID) int {
	n := 0
	for _, m := range s.memberships {
		if m.RoomID == roomID && m.Active() {
			n++
		}
	}
	return n
}
