package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"examprep/backend/internal/models"
	"examprep/backend/internal/service"
)

// RequireRoles must run after Auth.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, service.ErrMissingToken.Message)
			return
		}

		if err := service.Authorize(identity, roles...); err != nil {
			var svcErr *service.Error
			if errors.As(err, &svcErr) {
				abort(c, http.StatusForbidden, svcErr.Message)
				return
			}
			abort(c, http.StatusForbidden, service.ErrForbidden.Message)
			return
		}

		c.Next()
	}
}
