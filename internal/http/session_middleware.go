package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekit/internal/domain"
	"sitekit/internal/service"
)

const (
	currentUserKey = "current_user"
	loginPath      = "/login"
)

// RequireSession exige token valido y sesion no expirada. Sin sesion, las
// rutas /admin redirigen a /login y el resto responde 401. Cada request
// autenticado cuenta como actividad.
func RequireSession(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin, ok := GetOrigin(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "origin not resolved"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		path := c.Request.URL.Path
		user, ok := origin.Auth.CurrentUser(ctx)
		if !ok {
			rejectUnauthenticated(c, path)
			return
		}

		if len(roles) > 0 && !hasAnyRole(user, roles) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}

		if err := origin.Auth.RecordActivity(ctx, path); err != nil {
			if errors.Is(err, service.ErrSessionExpired) || errors.Is(err, service.ErrNoSession) {
				rejectUnauthenticated(c, path)
				return
			}
			origin.Logger.Warn("record activity failed", zap.Error(err))
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func rejectUnauthenticated(c *gin.Context, path string) {
	if service.IsAdminPath(path) {
		c.Redirect(http.StatusFound, loginPath)
		c.Abort()
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	c.Abort()
}

func hasAnyRole(user domain.User, roles []domain.Role) bool {
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

// GetCurrentUser obtiene el usuario autenticado desde el contexto.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
