// Package websocket provides the realtime presence and notification layer.
// Uses github.com/coder/websocket for the transport.
package websocket

import (
	"context"
	"fmt"

	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
)

// Hub wires the registry, dispatcher, presence broadcaster and lifecycle
// handler together. It is constructed once per process and passed to
// whoever needs it.
type Hub struct {
	Registry   *Registry
	Dispatcher *Dispatcher
	Presence   *PresenceBroadcaster
	Lifecycle  *Lifecycle
}

// NewHub creates a Hub. A nil metrics set falls back to the global one.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.Get()
	}
	registry := NewRegistry()
	lifecycle := NewLifecycle(registry, m)
	dispatcher := NewDispatcher(registry, m)
	dispatcher.release = lifecycle.DisconnectHandle
	return &Hub{
		Registry:   registry,
		Dispatcher: dispatcher,
		Presence:   NewPresenceBroadcaster(registry, m),
		Lifecycle:  lifecycle,
	}
}

// NotifyUser is shorthand for Dispatcher.NotifyUser
func (h *Hub) NotifyUser(userID string, message *Message) int {
	return h.Dispatcher.NotifyUser(userID, message)
}

// OnlineUserCount is shorthand for Registry.OnlineUserCount
func (h *Hub) OnlineUserCount() int {
	return h.Registry.OnlineUserCount()
}

// GetMetrics returns a point-in-time snapshot for monitoring
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:  h.Lifecycle.accepted.Load(),
		ClosedConnections: h.Lifecycle.closed.Load(),
		LiveConnections:   h.Lifecycle.Count(),
		BoundConnections:  h.Registry.HandleCount(),
		OnlineUsers:       h.Registry.OnlineUserCount(),
		Dispatch:          h.Dispatcher.Stats(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of realtime state
type MetricsSnapshot struct {
	TotalConnections  int64         `json:"total_connections"`
	ClosedConnections int64         `json:"closed_connections"`
	LiveConnections   int           `json:"live_connections"`
	BoundConnections  int           `json:"bound_connections"`
	OnlineUsers       int           `json:"online_users"`
	Dispatch          DispatchStats `json:"dispatch"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d bound=%d online=%d notify=ok:%d/dropped:%d/offline:%d",
		m.LiveConnections, m.TotalConnections, m.BoundConnections, m.OnlineUsers,
		m.Dispatch.Delivered, m.Dispatch.Dropped, m.Dispatch.Offline,
	)
}

// Shutdown closes every live session
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating realtime hub shutdown")
	if err := h.Lifecycle.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown timeout: %w", err)
	}
	logger.Log.Info("Realtime hub shutdown complete")
	return nil
}
