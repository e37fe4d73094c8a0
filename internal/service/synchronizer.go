package service

import (
	"context"
	"errors"
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

// Synchronizer owns the room timeline: paging through it and appending to it.
type Synchronizer interface {
	FetchPage(ctx context.Context, identity domain.Identity, q domain.PageQuery) (*domain.Page, error)
	Append(ctx context.Context, identity domain.Identity, req AppendRequest) (*domain.Message, error)
	// AppendSystem writes a system notice in its own transaction and
	// publishes it once committed.
	AppendSystem(ctx context.Context, roomID uuid.UUID, text string) (*domain.Message, error)
	// WriteSystem writes a system notice inside the caller's transaction.
	// Publishing is left to the caller, after its commit.
	WriteSystem(ctx context.Context, roomID uuid.UUID, text string) (*domain.Message, error)
}

type AppendRequest struct {
	RoomID    uuid.UUID          `json:"-"`
	Body      string             `json:"message"`
	Type      domain.MessageType `json:"message_type"`
	GuestName *string            `json:"guest_name"`
	ReplyTo   *uuid.UUID         `json:"reply_to"`
}

type synchronizer struct {
	repos     *repository.Repositories
	cfg       config.ChatConfig
	publisher delivery.Publisher
	clock     *Clock
	log       logger.Logger
}

func NewSynchronizer(repos *repository.Repositories, cfg config.ChatConfig, publisher delivery.Publisher, clock *Clock, log logger.Logger) Synchronizer {
	if publisher == nil {
		publisher = delivery.NopPublisher{}
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &synchronizer{
		repos:     repos,
		cfg:       cfg,
		publisher: publisher,
		clock:     clock,
		log:       log,
	}
}

func (s *synchronizer) FetchPage(ctx context.Context, identity domain.Identity, q domain.PageQuery) (*domain.Page, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	room, err := s.repos.Room.GetByID(ctx, q.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReadable(ctx, room, identity); err != nil {
		return nil, err
	}

	q.Limit = s.clampLimit(q.Limit)
	if q.Direction == "" {
		q.Direction = domain.DirectionOlder
	}

	limit := q.Limit
	q.Limit = limit + 1
	rows, err := s.repos.Message.Page(ctx, q)
	if err != nil {
		s.log.Error("Failed to fetch messages", "error", err, "room_id", q.RoomID)
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	page := &domain.Page{Messages: rows}
	if len(rows) > limit {
		page.HasMore = true
		page.Messages = rows[:limit]
	}

	if n := len(page.Messages); n > 0 {
		c := page.Messages[n-1].Cursor()
		page.NextCursor = &c
	} else if q.Cursor != nil {
		c := *q.Cursor
		page.NextCursor = &c
	}
	return page, nil
}

// checkReadable lets anyone read a public room. Private rooms need an active
// membership.
func (s *synchronizer) checkReadable(ctx context.Context, room *domain.Room, identity domain.Identity) error {
	if !room.IsPrivate {
		return nil
	}
	ok, err := s.repos.Membership.IsActiveMember(ctx, room.ID, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return apperrors.ErrNotMember
	}
	return nil
}

func (s *synchronizer) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return limit
}

func (s *synchronizer) Append(ctx context.Context, identity domain.Identity, req AppendRequest) (*domain.Message, error) {
	if identity.ID == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperrors.Validation("message", "must not be empty")
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxMessageLength {
		return nil, apperrors.Validation("message", fmt.Sprintf("must be at most %d characters", s.cfg.MaxMessageLength))
	}

	msgType := req.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Sendable() {
		return nil, apperrors.Validation("message_type", "must be one of text, image, file")
	}

	guestName, err := resolveGuestName(identity, req.GuestName)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		RoomID:    req.RoomID,
		Body:      body,
		Type:      msgType,
		GuestName: guestName,
		ReplyTo:   req.ReplyTo,
	}

	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repos.Room.GetForShare(ctx, req.RoomID); err != nil {
			return err
		}

		ok, err := s.repos.Membership.IsActiveMember(ctx, req.RoomID, identity.ID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !ok {
			return apperrors.ErrNotMember
		}

		if req.ReplyTo != nil {
			parent, err := s.repos.Message.GetByID(ctx, *req.ReplyTo)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if parent == nil || parent.RoomID != req.RoomID {
				return apperrors.Validation("reply_to", "must reference a message in this room")
			}
		}

		if !identity.IsGuest {
			user, err := s.repos.User.GetByID(ctx, identity.ID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return apperrors.ErrUnauthenticated
				}
				return err
			}
			msg.UserID = &user.ID
			msg.User = user.Author()
		}

		msg.ID, err = uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message id: %w", err)
		}
		msg.CreatedAt = s.clock.Next()

		if err := s.repos.Message.Create(ctx, msg); err != nil {
			s.log.Error("Failed to create message", "error", err, "room_id", req.RoomID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, msg)
	return msg, nil
}

// resolveGuestName returns the name stored with a guest's message. Registered
// users are identified by user_id and may not set one.
func resolveGuestName(identity domain.Identity, requested *string) (*string, error) {
	if !identity.IsGuest {
		if requested != nil && strings.TrimSpace(*requested) != "" {
			return nil, apperrors.Validation("guest_name", "only guests may set a guest name")
		}
		return nil, nil
	}

	name := identity.DisplayName
	if requested != nil {
		if trimmed := strings.TrimSpace(*requested); trimmed != "" {
			name = trimmed
		}
	}
	if name == "" {
		return nil, apperrors.Validation("guest_name", "is required")
	}
	if utf8.RuneCountInString(name) > domain.MaxDisplayNameLength {
		return nil, apperrors.Validation("guest_name", fmt.Sprintf("must be at most %d characters", domain.MaxDisplayNameLength))
	}
	return &name, nil
}

func (s *synchronizer) AppendSystem(ctx context.Context, roomID uuid.UUID, text string) (*domain.Message, error) {
	var msg *domain.Message
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.WriteSystem(ctx, roomID, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, msg)
	return msg, nil
}

func (s *synchronizer) WriteSystem(ctx context.Context, roomID uuid.UUID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.Validation("message", "must not be empty")
	}
	if utf8.RuneCountInString(text) > s.cfg.MaxSystemLength {
		return nil, apperrors.Validation("message", fmt.Sprintf("must be at most %d characters", s.cfg.MaxSystemLength))
	}

	if _, err := s.repos.Room.GetForShare(ctx, roomID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	msg := &domain.Message{
		ID:        id,
		RoomID:    roomID,
		Body:      text,
		Type:      domain.MessageTypeSystem,
		CreatedAt: s.clock.Next(),
	}
	if err := s.repos.Message.Create(ctx, msg); err != nil {
		s.log.Error("Failed to create system message", "error", err, "room_id", roomID)
		return nil, err
	}
	return msg, nil
}

// publish is best effort: the message is committed and clients that miss the
// event pick it up on their next fetch.
func (s *synchronizer) publish(ctx context.Context, msg *domain.Message) {
	if err := s.publisher.Publish(ctx, msg.RoomID, domain.EventMessageSent, msg); err != nil {
		s.log.Warn("Failed to publish message", "error", err, "room_id", msg.RoomID, "message_id", msg.ID)
	}
}
