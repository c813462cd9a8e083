package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
	"idmigrate/internal/service"
)

const (
	dualSessionKey     = "dual_session"
	signInTokenHeader  = "X-Sign-In-Token"
	diagnosticResponse = "diagnostic"
)

// SessionBuilder arma el contexto de sesiones de la request.
type SessionBuilder interface {
	Build(r *http.Request) domain.DualSessionContext
}

type Migrator interface {
	Decide(ctx context.Context, sc domain.DualSessionContext) service.Decision
}

type Handoffer interface {
	Complete(ctx context.Context, token domain.SignInToken) (identity.Handoff, error)
}

// MigrationMiddleware ejecuta el motor de migracion antes de cualquier handler.
type MigrationMiddleware struct {
	logger       *zap.Logger
	sessions     SessionBuilder
	migrator     Migrator
	bridge       Handoffer
	metrics      *metrics.Metrics
	cookieName   string
	cookieSecure bool
}

// NewMigrationMiddleware crea el middleware. bridge puede ser nil: en ese caso el
// ticket se entrega al cliente en el header X-Sign-In-Token.
func NewMigrationMiddleware(
	logger *zap.Logger,
	sessions SessionBuilder,
	migrator Migrator,
	bridge Handoffer,
	m *metrics.Metrics,
	cookieName string,
	cookieSecure bool,
) *MigrationMiddleware {
	if cookieName == "" {
		cookieName = "__session"
	}
	return &MigrationMiddleware{
		logger:       logger,
		sessions:     sessions,
		migrator:     migrator,
		bridge:       bridge,
		metrics:      m,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
	}
}

func (m *MigrationMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := m.sessions.Build(c.Request)
		decision := m.migrator.Decide(c.Request.Context(), sc)

		switch decision.Outcome {
		case service.OutcomeError:
			// Falla visible pero no fatal: se responde con el diagnostico.
			c.JSON(http.StatusOK, gin.H{diagnosticResponse: decision.Reason})
			c.Abort()
			return
		case service.OutcomeProvisionAndHandoff:
			if hosted := m.handoff(c, decision.Token); hosted != nil {
				sc.Hosted = hosted
			}
		}

		c.Set(dualSessionKey, sc)
		c.Next()
	}
}

func (m *MigrationMiddleware) handoff(c *gin.Context, token domain.SignInToken) *domain.HostedSession {
	if m.bridge == nil {
		c.Header(signInTokenHeader, token.Token)
		m.metrics.ObserveHandoff("client")
		return nil
	}

	result, err := m.bridge.Complete(c.Request.Context(), token)
	if err != nil {
		m.logger.Warn("handoff failed", zap.Error(err), zap.String("hosted_user_id", token.SubjectHostedUserID))
		m.metrics.ObserveHandoff("failed")
		return nil
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookieName,
		Value:    result.SessionJWT,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	m.metrics.ObserveHandoff("completed")
	session := result.Session
	return &session
}

// GetDualSession obtiene el contexto de sesiones fijado por el middleware.
func GetDualSession(c *gin.Context) (domain.DualSessionContext, bool) {
	val, ok := c.Get(dualSessionKey)
	if !ok {
		return domain.DualSessionContext{}, false
	}
	sc, ok := val.(domain.DualSessionContext)
	return sc, ok
}
