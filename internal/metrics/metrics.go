package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSize       *prometheus.HistogramVec
	HTTPResponseSize      *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal *prometheus.CounterVec

	// Redis metrics
	RedisOperationsTotal *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Realtime metrics
	OnlineUsers        prometheus.Gauge
	LiveConnections    prometheus.Gauge
	ConnectionsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	PresenceBroadcasts prometheus.Counter
	PresenceDeliveries *prometheus.CounterVec
	InboundFramesTotal *prometheus.CounterVec

	// Social engagement
	MessagesSentTotal    prometheus.Counter
	ConversationsCreated prometheus.Counter
	ConversationRetries  prometheus.Counter
	LikesTotal           *prometheus.CounterVec
	CommentsTotal        prometheus.Counter
	FollowsTotal         *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}

// NewForRegistry builds a metrics set registered against reg instead of the
// default registry, so tests can assert on fresh counters.
func NewForRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path", "status"},
		),
		HTTPActiveConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_active_connections",
				Help: "Number of currently active HTTP connections",
			},
			[]string{"method", "path"},
		),

		RateLimitExceededTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_exceeded_total",
				Help: "Total number of rate limit violations",
			},
			[]string{"endpoint", "method"},
		),

		RedisOperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redis_operations_total",
				Help: "Total number of Redis operations",
			},
			[]string{"operation", "status"},
		),

		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_online_users",
			Help: "Distinct users with at least one identified connection",
		}),
		LiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_live_connections",
			Help: "Accepted realtime connections that have not closed",
		}),
		ConnectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_connections_total",
				Help: "Realtime connection lifecycle events",
			},
			[]string{"event"}, // accepted, identified, closed
		),
		NotificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_notifications_total",
				Help: "Per-handle notification outcomes",
			},
			[]string{"type", "outcome"}, // delivered, dropped, offline
		),
		PresenceBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "realtime_presence_broadcasts_total",
			Help: "Presence broadcasts triggered by registry transitions",
		}),
		PresenceDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_presence_deliveries_total",
				Help: "Per-handle presence frame outcomes",
			},
			[]string{"outcome"},
		),
		InboundFramesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_inbound_frames_total",
				Help: "Frames received from clients",
			},
			[]string{"type"},
		),

		MessagesSentTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Direct messages persisted",
		}),
		ConversationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Conversations created by a first message",
		}),
		ConversationRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "conversation_create_conflicts_total",
			Help: "Conversation creates that lost the race and re-read",
		}),
		LikesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "likes_total",
				Help: "Like and unlike actions",
			},
			[]string{"action"},
		),
		CommentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "comments_total",
			Help: "Comments created",
		}),
		FollowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "follows_total",
				Help: "Follow and unfollow actions",
			},
			[]string{"action"},
		),
	}
}
