package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"room_chat/internal/domain"
	"room_chat/internal/service"
	apperrors "room_chat/pkg/errors"
	"room_chat/pkg/logger"
)

const identityKey = "identity"

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

// RequireAuth resolves the bearer token into an Identity stored on the context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, apperrors.ErrUnauthenticated)
			return
		}

		identity, err := m.authService.Validate(c.Request.Context(), token)
		if err != nil {
			m.log.Debug("Rejected access token", "error", err, "path", c.FullPath())
			abort(c, err)
			return
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func SetIdentity(c *gin.Context, identity domain.Identity) {
	c.Set(identityKey, identity)
}

// IdentityFrom returns the identity set by RequireAuth.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

func abort(c *gin.Context, err error) {
	apiErr := apperrors.ToAPIError(err)
	c.AbortWithStatusJSON(apiErr.Code, apiErr)
}
