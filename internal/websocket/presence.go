package websocket

import (
	"sync"

	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"go.uber.org/zap"
)

// PresenceBroadcaster pushes the online user count to every bound handle
// after each registry transition. Broadcasts are serialized and read the
// count inside the lock, so the last frame a handle receives carries the
// latest committed count. Send failures are counted and otherwise ignored.
// Only identified handles are reached: a connection still in Connecting gets
// the current count in its connected frame and presence updates once it binds.
type PresenceBroadcaster struct {
	registry *Registry
	metrics  *metrics.Metrics

	mu        sync.Mutex
	lastCount int
}

// NewPresenceBroadcaster creates a broadcaster subscribed to registry transitions
func NewPresenceBroadcaster(registry *Registry, m *metrics.Metrics) *PresenceBroadcaster {
	if m == nil {
		m = metrics.Get()
	}
	p := &PresenceBroadcaster{registry: registry, metrics: m}
	registry.OnTransition(func(Transition) {
		p.Broadcast()
	})
	return p
}

// Broadcast sends the current online count to every bound handle and returns
// how many accepted it
func (p *PresenceBroadcaster) Broadcast() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := p.registry.OnlineUserCount()
	p.lastCount = count
	p.metrics.OnlineUsers.Set(float64(count))
	p.metrics.PresenceBroadcasts.Inc()

	msg := NewMessage(MessageTypePresence, PresencePayload{OnlineUsers: count})

	sent, failed := 0, 0
	for _, h := range p.registry.Handles() {
		if err := h.Send(msg); err != nil {
			failed++
			continue
		}
		sent++
	}

	p.metrics.PresenceDeliveries.WithLabelValues("delivered").Add(float64(sent))
	if failed > 0 {
		p.metrics.PresenceDeliveries.WithLabelValues("failed").Add(float64(failed))
		logger.Log.Debug("Presence broadcast partially failed",
			zap.Int("online_users", count),
			zap.Int("failed", failed))
	}
	return sent
}

// LastCount returns the count carried by the most recent broadcast
func (p *PresenceBroadcaster) LastCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCount
}
