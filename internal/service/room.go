package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/domain"
	"room_chat/internal/repository"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RoomService interface {
	Create(ctx context.Context, identity domain.Identity, in CreateRoomInput) (*domain.Room, error)
	Get(ctx context.Context, identity domain.Identity, roomID uuid.UUID) (*domain.Room, error)
	ListPublic(ctx context.Context) ([]*domain.Room, error)
	ListMine(ctx context.Context, identity domain.Identity) ([]*domain.Room, error)
	Update(ctx context.Context, identity domain.Identity, roomID uuid.UUID, in UpdateRoomInput) (*domain.Room, error)
	Delete(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error
	Join(ctx context.Context, identity domain.Identity, roomID uuid.UUID) (*domain.Membership, error)
	Leave(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error
	Members(ctx context.Context, identity domain.Identity, roomID uuid.UUID) ([]*domain.Member, error)
	// Activity is the room's audit trail, newest first. Creator only.
	Activity(ctx context.Context, identity domain.Identity, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error)
}

type CreateRoomInput struct {
	Name           string  `json:"name" binding:"required"`
	Description    *string `json:"description"`
	IsPrivate      bool    `json:"is_private"`
	AllowAnonymous bool    `json:"allow_anonymous"`
}

type UpdateRoomInput struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	IsPrivate      *bool   `json:"is_private"`
	AllowAnonymous *bool   `json:"allow_anonymous"`
}

// MemberEvent is the payload of member.joined and member.left.
type MemberEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	Name    string    `json:"name"`
	IsGuest bool      `json:"is_guest"`
}

type roomService struct {
	repos     *repository.Repositories
	sync      Synchronizer
	audit     AuditService
	publisher delivery.Publisher
	cfg       config.ChatConfig
	clock     *Clock
	log       logger.Logger
}

func NewRoomService(repos *repository.Repositories, sync Synchronizer, audit AuditService, publisher delivery.Publisher, cfg config.ChatConfig, clock *Clock, log logger.Logger) RoomService {
	if publisher == nil {
		publisher = delivery.NopPublisher{}
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &roomService{
		repos:     repos,
		sync:      sync,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
		log:       log,
	}
}

func (s *roomService) Create(ctx context.Context, identity domain.Identity, in CreateRoomInput) (*domain.Room, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	name, ok := domain.NormalizeRoomName(in.Name)
	if !ok {
		return nil, apperrors.Validation("name", fmt.Sprintf("must be 1 to %d characters", domain.MaxRoomNameLength))
	}
	description, err := normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room := &domain.Room{
		ID:             uuid.New(),
		Name:           name,
		Description:    description,
		IsPrivate:      in.IsPrivate,
		AllowAnonymous: in.AllowAnonymous,
		CreatedBy:      identity.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Room.Create(ctx, room); err != nil {
			s.log.Error("Failed to create room", "error", err)
			return err
		}
		if _, err := s.repos.Membership.RecordJoin(ctx, room.ID, identity.ID, now); err != nil {
			s.log.Error("Failed to join creator to room", "error", err, "room_id", room.ID)
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &room.ID, domain.EventTypeRoomCreated, map[string]interface{}{
			"name":       room.Name,
			"is_private": room.IsPrivate,
		})
	})
	if err != nil {
		return nil, err
	}

	room.MembersCount = 1
	s.log.Info("Room created", "room_id", room.ID, "created_by", identity.ID)
	return room, nil
}

func normalizeDescription(d *string) (*string, error) {
	if d == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*d)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxRoomDescriptionLength {
		return nil, apperrors.Validation("description", fmt.Sprintf("must be at most %d characters", domain.MaxRoomDescriptionLength))
	}
	return &trimmed, nil
}

func (s *roomService) Get(ctx context.Context, identity domain.Identity, roomID uuid.UUID) (*domain.Room, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}
	room, err := s.repos.Room.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsPrivate {
		if err := s.requireMember(ctx, roomID, identity.ID); err != nil {
			return nil, err
		}
	}
	return room, nil
}

func (s *roomService) ListPublic(ctx context.Context) ([]*domain.Room, error) {
	return s.repos.Room.ListPublic(ctx, s.cfg.PublicRoomsLimit)
}

func (s *roomService) ListMine(ctx context.Context, identity domain.Identity) ([]*domain.Room, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return s.repos.Room.ListForUser(ctx, identity.ID)
}

func (s *roomService) Update(ctx context.Context, identity domain.Identity, roomID uuid.UUID, in UpdateRoomInput) (*domain.Room, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	var room *domain.Room
	wasPrivate := false
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		room, err = s.repos.Room.GetByID(ctx, roomID)
		if err != nil {
			return err
		}
		if room.CreatedBy != identity.ID {
			return fmt.Errorf("only the creator can update the room: %w", apperrors.ErrUnauthorized)
		}
		wasPrivate = room.IsPrivate

		changed := map[string]interface{}{}
		if in.Name != nil {
			name, ok := domain.NormalizeRoomName(*in.Name)
			if !ok {
				return apperrors.Validation("name", fmt.Sprintf("must be 1 to %d characters", domain.MaxRoomNameLength))
			}
			room.Name = name
			changed["name"] = name
		}
		if in.Description != nil {
			description, err := normalizeDescription(in.Description)
			if err != nil {
				return err
			}
			room.Description = description
			changed["description"] = description
		}
		if in.IsPrivate != nil {
			room.IsPrivate = *in.IsPrivate
			changed["is_private"] = room.IsPrivate
		}
		if in.AllowAnonymous != nil {
			room.AllowAnonymous = *in.AllowAnonymous
			changed["allow_anonymous"] = room.AllowAnonymous
		}
		room.UpdatedAt = s.clock.Now()

		if err := s.repos.Room.Update(ctx, room); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &room.ID, domain.EventTypeRoomUpdated, changed)
	})
	if err != nil {
		return nil, err
	}
	if room.IsPrivate && !wasPrivate {
		s.revoke(ctx, roomID, domain.AccessRevoked{Reason: "room is now private"})
	}
	return room, nil
}

func (s *roomService) Delete(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error {
	if identity.ID == uuid.Nil {
		return apperrors.ErrUnauthenticated
	}

	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.repos.Room.GetByID(ctx, roomID)
		if err != nil {
			return err
		}
		if room.CreatedBy != identity.ID {
			return fmt.Errorf("only the creator can delete the room: %w", apperrors.ErrUnauthorized)
		}
		if err := s.repos.Room.Delete(ctx, roomID); err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &roomID, domain.EventTypeRoomDeleted, map[string]interface{}{
			"name": room.Name,
		})
	})
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, roomID, domain.EventRoomDeleted, map[string]string{"room_id": roomID.String()}); err != nil {
		s.log.Warn("Failed to publish room deletion", "error", err, "room_id", roomID)
	}
	s.log.Info("Room deleted", "room_id", roomID, "deleted_by", identity.ID)
	return nil
}

func (s *roomService) Join(ctx context.Context, identity domain.Identity, roomID uuid.UUID) (*domain.Membership, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	var (
		membership *domain.Membership
		notice     *domain.Message
	)
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.repos.Room.GetForShare(ctx, roomID)
		if err != nil {
			return err
		}
		if identity.IsGuest && !room.AllowAnonymous {
			return fmt.Errorf("room does not allow guests: %w", apperrors.ErrUnauthorized)
		}

		active, err := s.repos.Membership.IsActiveMember(ctx, roomID, identity.ID)
		if err != nil {
			return err
		}
		if active {
			return apperrors.ErrAlreadyMember
		}

		membership, err = s.repos.Membership.RecordJoin(ctx, roomID, identity.ID, s.clock.Now())
		if err != nil {
			return err
		}
		notice, err = s.sync.WriteSystem(ctx, roomID, displayName(identity)+" joined the room")
		if err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &roomID, domain.EventTypeRoomJoined, nil)
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, roomID, domain.EventMemberJoined, identity, notice)
	return membership, nil
}

func (s *roomService) Leave(ctx context.Context, identity domain.Identity, roomID uuid.UUID) error {
	if identity.ID == uuid.Nil {
		return apperrors.ErrUnauthenticated
	}

	var notice *domain.Message
	var room *domain.Room
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		room, err = s.repos.Room.GetForShare(ctx, roomID)
		if err != nil {
			return err
		}

		active, err := s.repos.Membership.IsActiveMember(ctx, roomID, identity.ID)
		if err != nil {
			return err
		}
		if !active {
			return apperrors.Validation("room", "you are not a member of this room")
		}

		if err := s.repos.Membership.RecordLeave(ctx, roomID, identity.ID, s.clock.Now()); err != nil {
			return err
		}
		notice, err = s.sync.WriteSystem(ctx, roomID, displayName(identity)+" left the room")
		if err != nil {
			return err
		}
		return s.audit.LogEvent(ctx, &identity, &roomID, domain.EventTypeRoomLeft, nil)
	})
	if err != nil {
		return err
	}

	if room.IsPrivate {
		userID := identity.ID
		s.revoke(ctx, roomID, domain.AccessRevoked{UserID: &userID, Reason: apperrors.ErrNotMember.Error()})
	}
	s.announce(ctx, roomID, domain.EventMemberLeft, identity, notice)
	return nil
}

func (s *roomService) Members(ctx context.Context, identity domain.Identity, roomID uuid.UUID) ([]*domain.Member, error) {
	if _, err := s.Get(ctx, identity, roomID); err != nil {
		return nil, err
	}
	return s.repos.Membership.ListActiveMembers(ctx, roomID)
}

func (s *roomService) Activity(ctx context.Context, identity domain.Identity, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}
	room, err := s.repos.Room.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatedBy != identity.ID {
		return nil, fmt.Errorf("only the creator can read room activity: %w", apperrors.ErrUnauthorized)
	}
	return s.audit.RoomHistory(ctx, roomID, limit)
}

func (s *roomService) requireMember(ctx context.Context, roomID, userID uuid.UUID) error {
	ok, err := s.repos.Membership.IsActiveMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}

// announce runs after commit. The membership event goes first so clients can
// update their member list before the notice lands in the timeline.
func (s *roomService) announce(ctx context.Context, roomID uuid.UUID, event string, identity domain.Identity, notice *domain.Message) {
	payload := MemberEvent{UserID: identity.ID, Name: displayName(identity), IsGuest: identity.IsGuest}
	if err := s.publisher.Publish(ctx, roomID, event, payload); err != nil {
		s.log.Warn("Failed to publish membership event", "error", err, "room_id", roomID, "event", event)
	}
	if notice == nil {
		return
	}
	if err := s.publisher.Publish(ctx, roomID, domain.EventMessageSent, notice); err != nil {
		s.log.Warn("Failed to publish system message", "error", err, "room_id", roomID)
	}
}

// revoke runs after commit so a reconnecting client already sees the new state.
func (s *roomService) revoke(ctx context.Context, roomID uuid.UUID, revoked domain.AccessRevoked) {
	if err := s.publisher.Publish(ctx, roomID, domain.EventAccessRevoked, revoked); err != nil {
		s.log.Warn("Failed to revoke subscriptions", "error", err, "room_id", roomID)
	}
}

func displayName(identity domain.Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	if identity.IsGuest {
		return "Guest"
	}
	return "Someone"
}
