package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/service"
)

type AttributeReader interface {
	AttributeFor(ctx context.Context, session domain.HostedSession) (domain.UserAttribute, error)
}

// PageHandler sirve las vistas que dependen de la sesion hosted.
type PageHandler struct {
	logger      *zap.Logger
	attributes  AttributeReader
	frontendURL string
}

func NewPageHandler(logger *zap.Logger, attributes AttributeReader, frontendURL string) *PageHandler {
	return &PageHandler{
		logger:      logger,
		attributes:  attributes,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Home maneja GET /.
func (h *PageHandler) Home(c *gin.Context) {
	sc, _ := GetDualSession(c)
	if !sc.HasHosted() {
		c.Redirect(http.StatusFound, "/sign-in")
		return
	}

	attr, err := h.attributes.AttributeFor(c.Request.Context(), *sc.Hosted)
	if err != nil && !errors.Is(err, service.ErrAttributeNotFound) {
		h.logger.Error("attribute lookup failed", zap.Error(err), zap.String("user_id", sc.Hosted.UserID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load attribute"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   sc.Hosted.UserID,
		"attribute": attr.Attribute,
	})
}

// SignIn maneja GET /sign-in.
func (h *PageHandler) SignIn(c *gin.Context) {
	h.entry(c, "sign_in_url", "/sign-in")
}

// SignUp maneja GET /sign-up.
func (h *PageHandler) SignUp(c *gin.Context) {
	h.entry(c, "sign_up_url", "/sign-up")
}

func (h *PageHandler) entry(c *gin.Context, key, path string) {
	sc, _ := GetDualSession(c)
	if sc.HasHosted() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.JSON(http.StatusOK, gin.H{key: h.frontendURL + path})
}
