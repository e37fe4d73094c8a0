package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"room_chat/pkg/logger"
)

func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("Request failed", kv...)
		case status >= 400:
			log.Warn("Request rejected", kv...)
		default:
			log.Info("Request handled", kv...)
		}
	}
}
