package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"room_chat/internal/config"
	"room_chat/internal/delivery"
	"room_chat/internal/domain"
	"room_chat/internal/middleware"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// SubscriptionSucceeded is the payload of subscription.succeeded.
type SubscriptionSucceeded struct {
	ConnectionID string                  `json:"connection_id"`
	Presence     []domain.PresenceMember `json:"presence"`
}

type WebSocketHandler struct {
	authService service.AuthService
	presence    service.PresenceTracker
	hub         *delivery.Hub
	publisher   delivery.Publisher
	upgrader    websocket.Upgrader
	subCfg      delivery.SubscriberConfig
	presenceTTL time.Duration
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, presence service.PresenceTracker, hub *delivery.Hub, publisher delivery.Publisher, cfg *config.Config, log logger.Logger) *WebSocketHandler {
	if publisher == nil {
		publisher = hub
	}
	return &WebSocketHandler{
		authService: authService,
		presence:    presence,
		hub:         hub,
		publisher:   publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
		subCfg: delivery.SubscriberConfig{
			WriteWait:  cfg.Delivery.WriteTimeout,
			PongWait:   cfg.Delivery.PongTimeout,
			SendBuffer: cfg.Delivery.SubscriberBuffer,
		},
		presenceTTL: cfg.Delivery.PresenceTTL,
		log:         log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// Subscribe upgrades GET /ws/rooms/:id into a room topic subscription.
// The token travels in the query string because browsers cannot set
// headers on a websocket handshake.
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		_ = c.Error(apperrors.ErrUnauthenticated)
		return
	}
	id, err := h.authService.Validate(c.Request.Context(), token)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err, "room_id", roomID)
		return
	}

	sub := delivery.NewSubscriber(conn, roomID, id, h.subCfg, h.log)
	go sub.WritePump()

	// The request context ends with this handler; cleanup must outlive it.
	ctx := context.WithoutCancel(c.Request.Context())

	if err := h.presence.Authorize(ctx, id, roomID); err != nil {
		apiErr := apperrors.ToAPIError(err)
		h.log.Info("Subscription rejected", "room_id", roomID, "user_id", id.ID, "status", apiErr.Code)
		_ = sub.SendEvent(domain.EventSubscriptionError, domain.SubscriptionError{Status: apiErr.Code, Message: apiErr.Message})
		sub.Close(websocket.ClosePolicyViolation, apiErr.Message)
		return
	}

	h.hub.Register(sub)
	member := sub.Presence()
	if err := h.presence.Enter(ctx, roomID, member); err != nil {
		h.log.Warn("Failed to record presence", "error", err, "room_id", roomID)
	}

	here, err := h.presence.Here(ctx, id, roomID)
	if err != nil {
		h.log.Warn("Failed to list presence", "error", err, "room_id", roomID)
		here = []domain.PresenceMember{member}
	}
	if err := sub.SendEvent(domain.EventSubscriptionSucceeded, SubscriptionSucceeded{ConnectionID: sub.ID, Presence: here}); err != nil {
		h.log.Warn("Failed to confirm subscription", "error", err, "connection_id", sub.ID)
	}
	h.publish(ctx, roomID, domain.EventPresenceJoining, member)

	go h.heartbeat(ctx, sub)
	sub.ReadPump()

	h.hub.Unregister(sub)
	if err := h.presence.Leave(ctx, roomID, sub.ID); err != nil {
		h.log.Warn("Failed to clear presence", "error", err, "room_id", roomID)
	}
	h.publish(ctx, roomID, domain.EventPresenceLeaving, member)
}

// heartbeat keeps the presence entry alive while the subscriber is open.
func (h *WebSocketHandler) heartbeat(ctx context.Context, sub *delivery.Subscriber) {
	if h.presenceTTL <= 0 {
		return
	}
	ticker := time.NewTicker(h.presenceTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			return
		case <-ticker.C:
			if err := h.presence.Enter(ctx, sub.RoomID, sub.Presence()); err != nil {
				h.log.Debug("Presence heartbeat failed", "error", err, "connection_id", sub.ID)
			}
		}
	}
}

func (h *WebSocketHandler) publish(ctx context.Context, roomID uuid.UUID, event string, member domain.PresenceMember) {
	if err := h.publisher.Publish(ctx, roomID, event, member); err != nil {
		h.log.Warn("Failed to publish presence event", "error", err, "event", event, "room_id", roomID)
	}
}
