package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/domain"
	"room_chat/internal/middleware"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type Handlers struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Room      *RoomHandler
	Message   *MessageHandler
	File      *FileHandler
	WebSocket *WebSocketHandler
}

// NewHandlers builds every handler. hub is nil when the deployment only
// serves the poll strategy; the websocket endpoint is then not routed.
func NewHandlers(services *service.Services, hub *delivery.Hub, publisher delivery.Publisher, cfg *config.Config, log logger.Logger) *Handlers {
	handlers := &Handlers{
		Health:  NewHealthHandler(cfg),
		Auth:    NewAuthHandler(services.Auth, log),
		Room:    NewRoomHandler(services.Room, services.Presence, log),
		Message: NewMessageHandler(services.Synchronizer, log),
		File:    NewFileHandler(services.File, cfg.Storage.MaxUploadBytes, log),
	}

	if hub != nil {
		handlers.WebSocket = NewWebSocketHandler(services.Auth, services.Presence, hub, publisher, cfg, log)
		log.Info("WebSocket handler initialized", "strategy", cfg.Delivery.Strategy)
	}

	return handlers
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(fmt.Errorf("invalid request body: %v: %w", err, apperrors.ErrBadRequest))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperrors.Validation(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.Validation(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// identity is only missing when a route was registered outside RequireAuth.
func identity(c *gin.Context) (domain.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		_ = c.Error(apperrors.ErrUnauthenticated)
	}
	return id, ok
}
