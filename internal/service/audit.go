package service

import (
	"context"

	"github.com/google/uuid"

	"room_chat/internal/domain"
	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

type AuditService interface {
	// LogEvent records what identity did. Called with a transaction ctx, the
	// row commits or rolls back with the action it describes.
	LogEvent(ctx context.Context, identity *domain.Identity, roomID *uuid.UUID, eventType string, payload map[string]interface{}) error
	RoomHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
	clock     *Clock
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, clock *Clock, log logger.Logger) AuditService {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &auditService{
		auditRepo: auditRepo,
		clock:     clock,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, identity *domain.Identity, roomID *uuid.UUID, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	entry := &domain.AuditLog{
		EventTime: s.clock.Now(),
		ActorRole: domain.ActorRoleSystem,
		RoomID:    roomID,
		EventType: eventType,
		Payload:   payload,
	}
	if identity != nil {
		id := identity.ID
		entry.ActorUserID = &id
		entry.ActorRole = domain.ActorRoleOf(*identity)
	}

	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Error("Failed to write audit log", "error", err, "event_type", eventType)
		return err
	}
	return nil
}

func (s *auditService) RoomHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 || limit > maxAuditHistory {
		limit = maxAuditHistory
	}
	return s.auditRepo.ListByRoom(ctx, roomID, limit)
}

const maxAuditHistory = 100
