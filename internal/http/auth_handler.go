package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitekit/internal/service"
)

// AuthHandler expone login, logout y el estado de sesion del origen.
type AuthHandler struct {
	logger *zap.Logger
}

func NewAuthHandler(logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	var req struct {
		Username   string `json:"username" binding:"required"`
		Password   string `json:"password" binding:"required"`
		RememberMe bool   `json:"remember_me"`
		Path       string `json:"path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := origin.Auth.Login(c.Request.Context(), service.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Path:       req.Path,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "user inactive"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			origin.Logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       res.User,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"source":     res.Source,
	})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	if err := origin.Auth.Logout(c.Request.Context()); err != nil {
		origin.Logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Session maneja GET /auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	status, err := origin.Auth.SessionStatus(c.Request.Context())
	if err != nil {
		origin.Logger.Error("session status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(status))
}

// Activity maneja POST /auth/activity.
func (h *AuthHandler) Activity(c *gin.Context) {
	origin, ok := mustOrigin(c)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	if err := origin.Auth.RecordActivity(ctx, req.Path); err != nil {
		switch {
		case errors.Is(err, service.ErrNoSession):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
		case errors.Is(err, service.ErrSessionExpired):
			resp := gin.H{"error": "session expired"}
			if service.IsAdminPath(req.Path) {
				resp["redirect"] = loginPath
			}
			c.JSON(http.StatusUnauthorized, resp)
		default:
			origin.Logger.Error("record activity failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record activity"})
		}
		return
	}

	status, err := origin.Auth.SessionStatus(ctx)
	if err != nil {
		origin.Logger.Error("session status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(status))
}

func sessionResponse(status service.SessionStatus) gin.H {
	return gin.H{
		"state":             status.State,
		"remaining_seconds": int(status.Remaining.Seconds()),
		"user":              status.User,
		"remember_me":       status.RememberMe,
	}
}

func mustOrigin(c *gin.Context) (*service.Origin, bool) {
	origin, ok := GetOrigin(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "origin not resolved"})
		return nil, false
	}
	return origin, true
}
