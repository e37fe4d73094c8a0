package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"room_chat/internal/config"
)

type HealthHandler struct {
	strategy     string
	pollInterval int64
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		strategy:     cfg.Delivery.Strategy,
		pollInterval: cfg.Delivery.PollInterval.Milliseconds(),
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "room-chat",
	})
}

// ServerInfo tells clients which delivery channel to build.
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	info := gin.H{
		"api_base":          "/api/v1",
		"delivery_strategy": h.strategy,
		"poll_interval_ms":  h.pollInterval,
	}
	if h.strategy == config.DeliveryStrategyPush {
		info["ws_path"] = "/ws/rooms/:id"
	}
	c.JSON(http.StatusOK, info)
}
