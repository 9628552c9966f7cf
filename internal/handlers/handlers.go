package handlers

import (
	"strconv"

	"github.com/rofiliofernandes/somudai/internal/messaging"
	"github.com/rofiliofernandes/somudai/internal/social"
	"github.com/rofiliofernandes/somudai/internal/websocket"
)

// Handlers contains the HTTP handlers for the API
type Handlers struct {
	messaging *messaging.Service
	social    *social.Service
	hub       *websocket.Hub
}

// NewHandlers creates a new handlers instance
func NewHandlers(messagingService *messaging.Service, socialService *social.Service, hub *websocket.Hub) *Handlers {
	return &Handlers{
		messaging: messagingService,
		social:    socialService,
		hub:       hub,
	}
}

func parseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}
