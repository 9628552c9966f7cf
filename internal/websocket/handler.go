package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/util"
	"go.uber.org/zap"
)

// Authenticator turns a bearer token into a verified user id
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// HandlerConfig tunes accepted connections
type HandlerConfig struct {
	SendBufferSize int
	RateLimit      RateLimitConfig
	// OriginPatterns are passed to websocket.Accept; empty allows any origin
	OriginPatterns []string
}

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub    *Hub
	auth   Authenticator
	config HandlerConfig
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, auth Authenticator, cfg HandlerConfig) *Handler {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultSendBufferSize
	}
	if cfg.RateLimit.MaxMessagesPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig()
	}
	return &Handler{hub: hub, auth: auth, config: cfg}
}

// HandleWebSocket upgrades the request and runs the connection until it closes.
// Authentication is done via JWT token in query param ?token=... or an
// Authorization: Bearer header. The connection joins the registry only after
// an identify frame.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Warn("WebSocket auth failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		util.RespondUnauthorized(c, "authentication failed")
		return
	}

	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	if len(h.config.OriginPatterns) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.config.OriginPatterns
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.config.SendBufferSize, h.config.RateLimit)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	session := h.hub.Lifecycle.Register(client)
	defer h.hub.Lifecycle.Disconnect(session)

	go client.WritePump()

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Send an identify frame to start receiving notifications",
		Data: map[string]interface{}{
			"session_id":   client.ID(),
			"server_time":  time.Now().UTC().UnixMilli(),
			"online_users": h.hub.Registry.OnlineUserCount(),
		},
	}))

	client.ReadPump(
		func(msg *Message) { h.handleFrame(session, client, userID, msg) },
		client.SendError,
	)
}

func (h *Handler) handleFrame(session *Session, client *Client, verifiedUserID string, message *Message) {
	h.hub.Lifecycle.metrics.InboundFramesTotal.WithLabelValues(message.Type).Inc()

	switch message.Type {
	case MessageTypePing, "heartbeat":
		h.handlePing(client, message)

	case MessageTypeIdentify:
		h.handleIdentify(session, client, verifiedUserID, message)

	default:
		logger.Log.Debug("Unknown message type",
			logger.WithConnID(client.ID()),
			zap.String("type", message.Type))
		client.SendError("unknown_type", "Unknown message type: "+message.Type)
	}
}

func (h *Handler) handleIdentify(session *Session, client *Client, verifiedUserID string, message *Message) {
	var payload IdentifyPayload
	if err := message.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "identify payload must be an object")
		return
	}
	if payload.UserID != "" && payload.UserID != verifiedUserID {
		logger.Log.Warn("Identify for a different user rejected",
			logger.WithUserID(verifiedUserID),
			zap.String("claimed_user_id", payload.UserID))
		client.SendError("identity_mismatch", "cannot identify as another user")
		return
	}

	if err := h.hub.Lifecycle.Identify(session, verifiedUserID); err != nil {
		switch {
		case errors.Is(err, ErrSessionClosed):
			return
		case errors.Is(err, ErrAlreadyIdentified):
			client.SendError("already_identified", err.Error())
		default:
			client.SendError("identify_failed", err.Error())
		}
		return
	}

	_ = client.Send(NewReply(message, MessageTypeSystem, SystemPayload{
		Event: "identified",
		Data: map[string]interface{}{
			"user_id": verifiedUserID,
		},
	}))
}

// handlePing responds to ping messages with pong
func (h *Handler) handlePing(client *Client, message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	latency := int64(0)
	if ping.ClientTime > 0 {
		latency = serverTime - ping.ClientTime
	}

	// Best-effort pong response - connection may be closing
	_ = client.Send(NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	}))
}

// authenticateRequest extracts the token and verifies it
func (h *Handler) authenticateRequest(c *gin.Context) (string, error) {
	tokenString := c.Query("token")

	if auth := c.GetHeader("Authorization"); auth != "" {
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	}

	if tokenString == "" {
		return "", errors.New("no authentication token provided")
	}
	return h.auth.Authenticate(tokenString)
}

// HandleMetrics returns realtime metrics (for monitoring)
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": h.hub.Registry.OnlineUsers(),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus checks if specific users are online
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.Registry.IsOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// Shutdown gracefully closes all realtime sessions
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// OnlineUserCount reports distinct users with an identified connection
func (h *Handler) OnlineUserCount() int {
	return h.hub.OnlineUserCount()
}
