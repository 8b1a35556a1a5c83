package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekit/internal/service"
)

const (
	originCookieName = "origin_id"
	originKey        = "origin"
	originFreshKey   = "origin_fresh"
	originCookieTTL  = 365 * 24 * time.Hour
)

// OriginMiddleware resuelve el origen del visitante a partir de la cookie
// origin_id y la emite si no existe o es invalida. Una peticion que estrena
// cookie queda marcada y no escribe metricas.
func OriginMiddleware(logger *zap.Logger, registry *service.Registry, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		fresh := false
		id, err := c.Cookie(originCookieName)
		if err != nil || id == "" {
			id = issueOriginCookie(c, secureCookie)
			fresh = true
		}

		origin, err := registry.Get(c.Request.Context(), id)
		if errors.Is(err, service.ErrInvalidOrigin) {
			id = issueOriginCookie(c, secureCookie)
			fresh = true
			origin, err = registry.Get(c.Request.Context(), id)
		}
		if err != nil {
			logger.Error("resolve origin failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
			c.Abort()
			return
		}

		c.Set(originKey, origin)
		c.Set(originFreshKey, fresh)
		c.Next()
	}
}

func issueOriginCookie(c *gin.Context, secure bool) string {
	id := service.NewOriginID()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(originCookieName, id, int(originCookieTTL.Seconds()), "/", "", secure, true)
	return id
}

// GetOrigin obtiene el origen resuelto por OriginMiddleware.
func GetOrigin(c *gin.Context) (*service.Origin, bool) {
	val, ok := c.Get(originKey)
	if !ok {
		return nil, false
	}
	origin, ok := val.(*service.Origin)
	return origin, ok
}

// perfMiddleware registra la latencia de cada ruta en las metricas del origen.
func perfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		origin, ok := GetOrigin(c)
		route := c.FullPath()
		if !ok || route == "" || c.GetBool(originFreshKey) {
			return
		}
		if err := origin.Perf.Record(c.Request.Context(), c.Request.Method+" "+route, time.Since(start)); err != nil {
			origin.Logger.Warn("record request metric failed", zap.Error(err))
		}
	}
}
