package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	assert.Same(t, a, b)
}

func TestNewForRegistryIsIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewForRegistry(reg)

	m.NotificationsTotal.WithLabelValues("like", "delivered").Inc()
	m.NotificationsTotal.WithLabelValues("like", "delivered").Inc()
	m.OnlineUsers.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("like", "delivered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OnlineUsers))

	// a second isolated registry starts at zero
	other := NewForRegistry(prometheus.NewRegistry())
	assert.Equal(t, 0.0, testutil.ToFloat64(other.NotificationsTotal.WithLabelValues("like", "delivered")))
}
