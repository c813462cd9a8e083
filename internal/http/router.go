package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"idmigrate/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	m *metrics.Metrics,
	migration *MigrationMiddleware,
	pageH *PageHandler,
	legacyH *LegacyHandler,
	provisionH *ProvisionHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	// Fuera de la migracion.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Solo las paginas pasan por el motor de migracion. Las rutas de API y de
	// sesion legada quedan fuera para que una sesion legada rota no las bloquee.
	pages := r.Group("/")
	pages.Use(jsonContentTypeMiddleware(), migration.Handle())
	pages.GET("/", pageH.Home)
	pages.GET("/sign-in", pageH.SignIn)
	pages.GET("/sign-up", pageH.SignUp)

	legacy := r.Group("/legacy")
	legacy.Use(jsonContentTypeMiddleware())
	legacy.POST("/sign-in", legacyH.SignIn)
	legacy.POST("/sign-out", legacyH.SignOut)

	api := r.Group("/api")
	api.Use(jsonContentTypeMiddleware())
	api.POST("/provision", provisionH.Provision)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("request_id", requestID),
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
