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

	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/auth"
	"github.com/rofiliofernandes/somudai/internal/cache"
	"github.com/rofiliofernandes/somudai/internal/config"
	"github.com/rofiliofernandes/somudai/internal/database"
	"github.com/rofiliofernandes/somudai/internal/handlers"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/messaging"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/middleware"
	"github.com/rofiliofernandes/somudai/internal/repository"
	"github.com/rofiliofernandes/somudai/internal/social"
	"github.com/rofiliofernandes/somudai/internal/telemetry"
	"github.com/rofiliofernandes/somudai/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Log.Info("Somudai server starting",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.DBDriver))

	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTelEnabled,
		SamplingRate: cfg.OTelSamplingRate,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	db, err := database.Initialize(cfg)
	if err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	// rateCounter stays a nil interface without Redis so the limiter falls back to memory
	var rateCounter middleware.WindowCounter
	if cfg.RedisEnabled() {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.Log.Warn("Redis unavailable, rate limiting in memory", zap.Error(err))
		} else {
			defer redisClient.Close()
			rateCounter = redisClient
		}
	}

	m := metrics.Initialize()
	hub := websocket.NewHub(m)
	authService := auth.NewService([]byte(cfg.JWTSecret), nil)

	socialRepo := repository.NewSocialRepository(db)
	socialService := social.NewService(socialRepo, hub.Dispatcher, hub.Registry, m)
	messagingService := messaging.NewService(repository.NewConversationRepository(db), hub.Dispatcher, m, nil)

	wsHandler := websocket.NewHandler(hub, authService, websocket.HandlerConfig{
		SendBufferSize: cfg.WSSendBuffer,
	})

	r := setupRouter(routerDeps{
		cfg:         cfg,
		metrics:     m,
		auth:        authService,
		handlers:    handlers.NewHandlers(messagingService, socialService, hub),
		wsHandler:   wsHandler,
		users:       socialService,
		rateCounter: rateCounter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Somudai backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Realtime sessions first: hijacked connections are not drained by srv.Shutdown
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("WebSocket shutdown warning", zap.Error(err))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
		logger.Log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
