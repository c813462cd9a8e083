package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
	"idmigrate/internal/service"
)

// Respuesta exitosa del endpoint; la clave mal escrita es parte del contrato.
const provisionSuccessKey = "succes"

var errMalformedEmail = errors.New("malformed email payload")

type Ensurer interface {
	EnsureHostedUser(ctx context.Context, email string) (service.ProvisionResult, error)
}

// ProvisionHandler atiende el aprovisionamiento just-in-time del interceptor.
type ProvisionHandler struct {
	logger      *zap.Logger
	provisioner Ensurer
	limiter     service.AttemptLimiter
	metrics     *metrics.Metrics
}

// NewProvisionHandler crea el handler; limiter puede ser nil (sin limite).
func NewProvisionHandler(logger *zap.Logger, provisioner Ensurer, limiter service.AttemptLimiter, m *metrics.Metrics) *ProvisionHandler {
	return &ProvisionHandler{
		logger:      logger,
		provisioner: provisioner,
		limiter:     limiter,
		metrics:     m,
	}
}

// Provision maneja POST /api/provision.
func (h *ProvisionHandler) Provision(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid provision request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	email, err := extractEmail(req.Email)
	if err != nil {
		h.metrics.ObserveJIT("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.limiter != nil && !h.limiter.Allow(c.Request.Context(), email) {
		h.metrics.ObserveJIT("rate_limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	result, err := h.provisioner.EnsureHostedUser(c.Request.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLegacyUserNotFound):
			h.metrics.ObserveJIT("not_exist")
			c.JSON(http.StatusOK, gin.H{"error": identity.ProvisionNotExist})
		case errors.Is(err, service.ErrProvisionInFlight):
			h.metrics.ObserveJIT("in_flight")
			c.JSON(http.StatusConflict, gin.H{"error": "provisioning in progress"})
		default:
			h.metrics.ObserveJIT("failed")
			h.logger.Error("jit provisioning failed", zap.Error(err), zap.String("email", email))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not provision user"})
		}
		return
	}

	h.metrics.ObserveJIT("ok")
	h.logger.Info("jit provisioning done",
		zap.String("hosted_user_id", result.User.ID),
		zap.Bool("created", result.Created),
	)
	c.JSON(http.StatusOK, gin.H{provisionSuccessKey: "user exists"})
}

// extractEmail recupera el email de un fragmento form-encoded "clave=valor":
// toma lo que sigue al primer "=", corta en el primer "&" y decodifica.
func extractEmail(raw string) (string, error) {
	_, value, ok := strings.Cut(raw, "=")
	if !ok {
		return "", errMalformedEmail
	}
	value, _, _ = strings.Cut(value, "&")
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return "", errMalformedEmail
	}
	email := domain.NormalizeEmail(decoded)
	if email == "" {
		return "", errMalformedEmail
	}
	return email, nil
}
