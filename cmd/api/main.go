package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"idmigrate/internal/config"
	"idmigrate/internal/db"
	apihttp "idmigrate/internal/http"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
	"idmigrate/internal/repository"
	"idmigrate/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	m := metrics.New()
	legacyUsers := repository.NewPgLegacyUserRepository(pool)
	attributes := repository.NewPgUserAttributeRepository(pool)
	provider := identity.NewHTTPClient(cfg.HostedAPIURL, cfg.HostedSecretKey, cfg.SignInTokenLifetime(), nil)

	provisionLock := service.NewMemoryProvisionLock()
	attempts := service.NewMemoryAttemptLimiter(cfg.AttemptWindowDuration(), cfg.AttemptMax)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process provision lock", zap.Error(err))
		} else {
			provisionLock = service.NewRedisProvisionLock(redisClient)
			attempts = service.NewRedisAttemptLimiter(redisClient, cfg.AttemptWindowDuration(), cfg.AttemptMax)
		}
		cancel()
	}

	legacySessions, err := service.NewLegacySessionStore(cfg.LegacySessionKey, cfg.LegacySessionName, cfg.CookieSecure)
	if err != nil {
		logger.Fatal("legacy session store", zap.Error(err))
	}
	hostedSessions, err := service.NewHostedSessionValidator(cfg.HostedJWTPublicKey, cfg.HostedJWTSecret, cfg.HostedSessionName)
	if err != nil {
		logger.Fatal("hosted session validator", zap.Error(err))
	}

	provisioner := service.NewProvisioner(logger, provider, legacyUsers, provisionLock, cfg.ProvisionLockLifetime(), m)
	migrationSvc := service.NewMigrationService(logger, provisioner, provider, m)
	sessionSvc := service.NewSessionService(legacySessions, hostedSessions)
	userSvc := service.NewUserService(logger, legacyUsers, attributes)

	var bridge apihttp.Handoffer
	if cfg.HostedFrontendURL != "" {
		bridge = identity.NewBridge(identity.NewFrontendClient(cfg.HostedFrontendURL, nil), hostedSessions)
	} else {
		logger.Warn("hosted frontend url not configured, handoff left to the client")
	}

	migration := apihttp.NewMigrationMiddleware(logger, sessionSvc, migrationSvc, bridge, m, hostedSessions.CookieName(), cfg.CookieSecure)
	pageHandler := apihttp.NewPageHandler(logger, userSvc, cfg.HostedFrontendURL)
	legacyHandler := apihttp.NewLegacyHandler(logger, userSvc, legacySessions, attempts)
	provisionHandler := apihttp.NewProvisionHandler(logger, provisioner, attempts, m)
	router := apihttp.NewRouter(logger, m, migration, pageHandler, legacyHandler, provisionHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
