package service

import (
	"room_chat/internal/blob"
	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

type Services struct {
	Auth         AuthService
	Room         RoomService
	Synchronizer Synchronizer
	File         FileService
	Presence     PresenceTracker
	RateLimit    RateLimitService
	Audit        AuditService
}

// NewServices wires every service over one clock so that timeline timestamps
// stay strictly increasing across rooms, joins and sends.
func NewServices(repos *repository.Repositories, blobs blob.Store, publisher delivery.Publisher, cfg *config.Config, log logger.Logger) *Services {
	clock := NewClock(nil)
	audit := NewAuditService(repos.Audit, clock, log)
	sync := NewSynchronizer(repos, cfg.Chat, publisher, clock, log)

	return &Services{
		Auth:         NewAuthService(repos, audit, cfg.JWT, clock, log),
		Room:         NewRoomService(repos, sync, audit, publisher, cfg.Chat, clock, log),
		Synchronizer: sync,
		File:         NewFileService(repos, blobs, publisher, audit, cfg.Storage, clock, log),
		Presence:     NewPresenceTracker(repos, cfg.Delivery.PresenceTTL, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, cfg.RateLimit, log),
		Audit:        audit,
	}
}
