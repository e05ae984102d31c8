package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"examprep/backend/internal/service"
)

const identityKey = "middleware.identity"

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func Auth(gate *service.AuthGate, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := gate.Authenticate(c.Request.Context(), BearerToken(c))
		if err != nil {
			var svcErr *service.Error
			if errors.As(err, &svcErr) {
				abort(c, http.StatusUnauthorized, svcErr.Message)
				return
			}
			log.Error().
				Err(err).
				Str("request_id", RequestIDFrom(c)).
				Msg("authenticate request")
			abort(c, http.StatusInternalServerError, "Error del servidor")
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Auth.
func CurrentIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return service.Identity{}, false
	}
	identity, ok := v.(service.Identity)
	return identity, ok
}
