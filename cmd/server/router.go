package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rofiliofernandes/somudai/internal/auth"
	"github.com/rofiliofernandes/somudai/internal/config"
	"github.com/rofiliofernandes/somudai/internal/handlers"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/middleware"
	"github.com/rofiliofernandes/somudai/internal/websocket"
)

const serviceName = "somudai-backend"

// routerDeps is everything the HTTP surface needs
type routerDeps struct {
	cfg         *config.Config
	metrics     *metrics.Metrics
	auth        *auth.Service
	handlers    *handlers.Handlers
	wsHandler   *websocket.Handler
	users       middleware.UserLookup
	rateCounter middleware.WindowCounter
}

func setupRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.MetricsMiddleware(d.metrics),
		middleware.TracingMiddleware(serviceName),
		middleware.SpanAttributesMiddleware(),
		cors.New(corsConfig(d.cfg.ClientURL)),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/api/v1/ws"})),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"timestamp":    time.Now().UTC(),
			"service":      serviceName,
			"online_users": d.wsHandler.OnlineUserCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint - auth via ?token=... or Authorization header
	r.GET("/ws", d.wsHandler.HandleWebSocket)

	api := r.Group("/api/v1", d.auth.AuthMiddleware())
	{
		ws := api.Group("/ws")
		{
			ws.GET("/metrics", d.wsHandler.HandleMetrics)
			ws.POST("/online", d.wsHandler.HandleOnlineStatus)
		}

		sendLimit := middleware.RedisRateLimitMiddleware(
			d.rateCounter,
			middleware.MessageRateLimitConfig(d.cfg.MessageRateLimit, d.cfg.MessageRateWindow),
			d.metrics,
		)
		messages := api.Group("/message")
		{
			messages.GET("", d.handlers.GetConversations)
			messages.GET("/:id", d.handlers.GetMessages)
			messages.POST("/:id", sendLimit, d.handlers.SendMessage)
		}

		posts := api.Group("/post")
		{
			posts.PUT("/like/:id", d.handlers.LikePost)
			posts.PUT("/dislike/:id", d.handlers.UnlikePost)
			posts.POST("/comment/:id", d.handlers.CommentOnPost)
		}

		api.POST("/user/follow/:id", d.handlers.FollowUser)

		admin := api.Group("/admin", middleware.RequireAdmin(d.users))
		{
			admin.GET("/overview", d.handlers.GetAdminOverview)
			admin.GET("/online", d.handlers.GetOnlineUsers)
		}
	}

	return r
}

func corsConfig(clientURL string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if clientURL == "" || clientURL == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{clientURL}
		cfg.AllowCredentials = true
	}
	return cfg
}
