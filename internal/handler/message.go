package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"room_chat/internal/domain"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type MessageHandler struct {
	sync service.Synchronizer
	log  logger.Logger
}

func NewMessageHandler(sync service.Synchronizer, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		sync: sync,
		log:  log,
	}
}

// List serves one page of a room timeline.
//
//	GET /rooms/:id/messages?timestamp=<RFC3339>&cursor_id=<uuid>&direction=older|newer&limit=<n>
func (h *MessageHandler) List(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	q, err := parsePageQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	q.RoomID = roomID

	page, err := h.sync.FetchPage(c.Request.Context(), id, q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page.Envelope())
}

func parsePageQuery(c *gin.Context) (domain.PageQuery, error) {
	var q domain.PageQuery

	dir, ok := domain.ParseDirection(c.Query("direction"))
	if !ok {
		return q, apperrors.Validation("direction", "must be older or newer")
	}
	q.Direction = dir

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, apperrors.Validation("limit", "must be a positive integer")
		}
		q.Limit = n
	}

	rawTS, rawID := c.Query("timestamp"), c.Query("cursor_id")
	if rawTS == "" {
		if rawID != "" {
			return q, apperrors.Validation("cursor_id", "requires timestamp")
		}
		return q, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return q, apperrors.Validation("timestamp", "must be an RFC 3339 timestamp")
	}
	cursor := domain.Cursor{Timestamp: ts.UTC()}
	if rawID != "" {
		cid, err := uuid.Parse(rawID)
		if err != nil {
			return q, apperrors.Validation("cursor_id", "must be a UUID")
		}
		cursor.ID = cid
	}
	q.Cursor = &cursor
	return q, nil
}

func (h *MessageHandler) Send(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.AppendRequest
	if !bindJSON(c, &req) {
		return
	}
	req.RoomID = roomID

	msg, err := h.sync.Append(c.Request.Context(), id, req)
	if err != nil {
		h.log.Debug("Message rejected", "error", err, "room_id", roomID, "user_id", id.ID)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
