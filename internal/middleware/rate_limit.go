package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"room_chat/internal/domain"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit counts requests per identity when one is known and per client IP
// otherwise. A failing counter lets the request through.
func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := domain.RateLimitKey(domain.RateLimitScopeIP, c.ClientIP())
		if identity, ok := IdentityFrom(c); ok {
			key = domain.RateLimitKey(domain.RateLimitScopeIdentity, identity.ID.String())
		}

		decision, err := m.rateLimitService.Allow(c.Request.Context(), key)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err, "key", key)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(decision.ResetIn.Seconds())))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.ResetIn.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.NewAPIError("Rate limit exceeded", http.StatusTooManyRequests))
			return
		}
		c.Next()
	}
}
