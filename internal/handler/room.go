package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RoomHandler struct {
	roomService service.RoomService
	presence    service.PresenceTracker
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomService, presence service.PresenceTracker, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		presence:    presence,
		log:         log,
	}
}

func (h *RoomHandler) ListPublic(c *gin.Context) {
	rooms, err := h.roomService.ListPublic(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) ListMine(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListMine(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) Create(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req service.CreateRoomInput
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), id, req)
	if err != nil {
		h.log.Warn("Failed to create room", "error", err, "user_id", id.ID)
		_ = c.Error(err)
		return
	}

	h.log.Info("Room created", "room_id", room.ID, "user_id", id.ID)
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	room, err := h.roomService.Get(c.Request.Context(), id, roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Update(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.UpdateRoomInput
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.roomService.Update(c.Request.Context(), id, roomID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Delete(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.roomService.Delete(c.Request.Context(), id, roomID); err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("Room deleted", "room_id", roomID, "user_id", id.ID)
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Join(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	membership, err := h.roomService.Join(c.Request.Context(), id, roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.roomService.Leave(c.Request.Context(), id, roomID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Members(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	members, err := h.roomService.Members(c.Request.Context(), id, roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// Activity returns the audit trail of a room to its creator.
func (h *RoomHandler) Activity(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = c.Error(apperrors.Validation("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.roomService.Activity(c.Request.Context(), id, roomID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

// Presence lists the live subscriptions of a room.
func (h *RoomHandler) Presence(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	here, err := h.presence.Here(c.Request.Context(), id, roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": here})
}
