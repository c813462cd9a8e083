package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/service"
)

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (domain.LegacyUser, error)
}

// LegacyHandler mantiene el login del sistema previo mientras dura la migracion.
type LegacyHandler struct {
	logger   *zap.Logger
	users    Authenticator
	sessions *service.LegacySessionStore
	limiter  service.AttemptLimiter
}

func NewLegacyHandler(logger *zap.Logger, users Authenticator, sessions *service.LegacySessionStore, limiter service.AttemptLimiter) *LegacyHandler {
	return &LegacyHandler{
		logger:   logger,
		users:    users,
		sessions: sessions,
		limiter:  limiter,
	}
}

// SignIn maneja POST /legacy/sign-in.
func (h *LegacyHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid legacy login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(c.Request.Context(), req.Email) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("legacy login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		return
	}

	if err := h.sessions.Save(c.Writer, c.Request, user.Email); err != nil {
		h.logger.Error("legacy session save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
}

// SignOut maneja POST /legacy/sign-out.
func (h *LegacyHandler) SignOut(c *gin.Context) {
	if err := h.sessions.Clear(c.Writer, c.Request); err != nil {
		h.logger.Warn("legacy session clear failed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}
