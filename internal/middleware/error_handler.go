package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

// ErrorHandler writes the last error a handler attached with c.Error.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		apiErr := apperrors.ToAPIError(err)
		if apiErr.Code >= 500 {
			log.Error("Unhandled error", "error", err, "path", c.FullPath())
		}
		c.JSON(apiErr.Code, apiErr)
	}
}
