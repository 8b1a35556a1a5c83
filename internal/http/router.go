package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekit/internal/domain"
	"sitekit/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas del sitio.
func NewRouter(
	logger *zap.Logger,
	registry *service.Registry,
	authH *AuthHandler,
	siteH *SiteHandler,
	secureCookie bool,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery, JSON content-type y origen.
	r.Use(
		zapLoggerMiddleware(logger),
		gin.Recovery(),
		jsonContentTypeMiddleware(),
		OriginMiddleware(logger, registry, secureCookie),
		perfMiddleware(),
	)

	auth := r.Group("/auth")
	auth.POST("/login", authH.Login)
	auth.POST("/logout", authH.Logout)
	auth.GET("/session", authH.Session)
	auth.POST("/activity", authH.Activity)

	r.POST("/validate/contact", siteH.ValidateContact)
	r.POST("/cost-estimates", siteH.CostEstimate)
	r.GET("/projects", siteH.Projects)
	r.POST("/quotes", siteH.SubmitQuote)
	r.POST("/newsletter", siteH.Subscribe)
	r.POST("/sync", siteH.Sync)
	r.GET("/metrics/summary", siteH.MetricsSummary)

	client := r.Group("/client", RequireSession())
	client.GET("/projects", siteH.ClientProjects)
	client.GET("/projects/:id", siteH.ClientProject)

	admin := r.Group("/admin", RequireSession(domain.RoleAdmin, domain.RoleStaff))
	admin.GET("/dashboard", siteH.AdminDashboard)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
