package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	apperrors "room_chat/pkg/errors"
)

type membershipRepository struct {
	s *Store
}

func (r *membershipRepository) IsActiveMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.latest(roomID, userID)
	return m.Active(), nil
}

func (r *membershipRepository) GetLatest(_ context.Context, roomID, userID uuid.UUID) (*domain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.latest(roomID, userID)
	if m == nil {
		return nil, apperrors.ErrNotFound
	}
	out := *m
	return &out, nil
}

// latest prefers the active row, then the most recent one. Expects s.mu held.
func (r *membershipRepository) latest(roomID, userID uuid.UUID) *domain.Membership {
	var found *domain.Membership
	for _, m := range r.s.memberships {
		if m.RoomID != roomID || m.UserID != userID {
			continue
		}
		if m.Active() {
			return m
		}
		if found == nil || m.JoinedAt.After(found.JoinedAt) {
			found = m
		}
	}
	return found
}

func (r *membershipRepository) RecordJoin(ctx context.Context, roomID, userID uuid.UUID, at time.Time) (*domain.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[roomID]; !ok {
		return nil, apperrors.ErrRoomNotFound
	}

	if m := r.latest(roomID, userID); m != nil {
		prev := *m
		m.JoinedAt = at
		m.AbandonmentIn = nil
		r.s.onRollback(ctx, func() { *m = prev })
		out := *m
		return &out, nil
	}

	r.s.nextMembershipID++
	m := &domain.Membership{ID: r.s.nextMembershipID, RoomID: roomID, UserID: userID, JoinedAt: at}
	r.s.memberships = append(r.s.memberships, m)
	r.s.onRollback(ctx, func() { r.s.memberships = removeMembership(r.s.memberships, m) })
	out := *m
	return &out, nil
}

func (r *membershipRepository) RecordLeave(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.latest(roomID, userID)
	if !m.Active() {
		return apperrors.ErrNotMember
	}
	left := at
	m.AbandonmentIn = &left
	r.s.onRollback(ctx, func() { m.AbandonmentIn = nil })
	return nil
}

func (r *membershipRepository) ListActiveMembers(_ context.Context, roomID uuid.UUID) ([]*domain.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := make([]*domain.Member, 0)
	for _, m := range r.s.memberships {
		if m.RoomID != roomID || !m.Active() {
			continue
		}
		member := &domain.Member{UserID: m.UserID, JoinedAt: m.JoinedAt}
		if u, ok := r.s.users[m.UserID]; ok {
			member.Name = u.Name
			member.IsAnonymous = u.IsAnonymous
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

func removeMembership(list []*domain.Membership, target *domain.Membership) []*domain.Membership {
	out := list[:0:0]
	for _, m := range list {
		if m != target {
			out = append(out, m)
		}
	}
	return out
}
