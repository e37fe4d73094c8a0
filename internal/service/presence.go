package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// PresenceTracker knows which connections are subscribed to each room topic
// and decides who may subscribe.
type PresenceTracker interface {
	// Authorize admits any authenticated identity to a public room and only
	// active members to a private one.
	Authorize(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error
	// Enter records or refreshes a connection. Heartbeats call it again.
	Enter(ctx context.Context, roomID uuid.UUID, member domain.PresenceMember) error
	Leave(ctx context.Context, roomID uuid.UUID, connectionID string) error
	// Here lists the live connections of a room the caller may read.
	Here(ctx context.Context, identity domain.Identity, roomID uuid.UUID) ([]domain.PresenceMember, error)
}

type presenceTracker struct {
	repos *repository.Repositories
	ttl   time.Duration
	log   logger.Logger
}

func NewPresenceTracker(repos *repository.Repositories, ttl time.Duration, log logger.Logger) PresenceTracker {
	return &presenceTracker{repos: repos, ttl: ttl, log: log}
}

func (t *presenceTracker) Authorize(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error {
	if identity.ID == uuid.Nil {
		return apperrors.ErrUnauthenticated
	}

	room, err := t.repos.Room.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsPrivate {
		return nil
	}

	ok, err := t.repos.Membership.IsActiveMember(ctx, roomID, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}

func (t *presenceTracker) Enter(ctx context.Context, roomID uuid.UUID, member domain.PresenceMember) error {
	if err := t.repos.Presence.Enter(ctx, roomID, member, t.ttl); err != nil {
		t.log.Warn("Failed to record presence", "error", err, "room_id", roomID, "connection_id", member.ConnectionID)
		return err
	}
	return nil
}

func (t *presenceTracker) Leave(ctx context.Context, roomID uuid.UUID, connectionID string) error {
	if err := t.repos.Presence.Leave(ctx, roomID, connectionID); err != nil {
		t.log.Warn("Failed to clear presence", "error", err, "room_id", roomID, "connection_id", connectionID)
		return err
	}
	return nil
}

func (t *presenceTracker) Here(ctx context.Context, identity domain.Identity, roomID uuid.UUID) ([]domain.PresenceMember, error) {
	if err := t.Authorize(ctx, identity, roomID); err != nil {
		return nil, err
	}
	return t.repos.Presence.Here(ctx, roomID, t.ttl)
}
