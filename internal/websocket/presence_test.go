package websocket

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceBroadcastOnTransitions(t *testing.T) {
	r := NewRegistry()
	p := NewPresenceBroadcaster(r, testMetrics())

	a, b := newFakeHandle(), newFakeHandle()
	r.Bind("alice", a)
	n, ok := lastPresence(a)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	r.Bind("bob", b)
	n, _ = lastPresence(a)
	assert.Equal(t, 2, n)
	n, _ = lastPresence(b)
	assert.Equal(t, 2, n)

	r.Unbind(b)
	n, _ = lastPresence(a)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, p.LastCount())
}

func TestPresenceNoBroadcastWithoutChange(t *testing.T) {
	r := NewRegistry()
	NewPresenceBroadcaster(r, testMetrics())

	h := newFakeHandle()
	r.Bind("alice", h)
	r.Bind("alice", h)
	r.Unbind(newFakeHandle())

	assert.Len(t, h.receivedOfType(MessageTypePresence), 1)
}

func TestPresenceCountsUsersNotConnections(t *testing.T) {
	r := NewRegistry()
	NewPresenceBroadcaster(r, testMetrics())

	h1, h2 := newFakeHandle(), newFakeHandle()
	r.Bind("alice", h1)
	r.Bind("alice", h2)

	n, _ := lastPresence(h1)
	assert.Equal(t, 1, n)
	n, _ = lastPresence(h2)
	assert.Equal(t, 1, n)
}

func TestPresenceFailureDoesNotTouchRegistry(t *testing.T) {
	m := testMetrics()
	r := NewRegistry()
	NewPresenceBroadcaster(r, m)

	broken := newFakeHandle()
	broken.fail(errors.New("socket gone"))
	r.Bind("alice", broken)

	ok := newFakeHandle()
	assert.True(t, r.Bind("bob", ok))

	assert.Equal(t, 2, r.OnlineUserCount())
	assert.Len(t, r.Lookup("alice"), 1)
	n, _ := lastPresence(ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PresenceDeliveries.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OnlineUsers))
}

// After arbitrary concurrent churn settles, the last frame every remaining
// handle saw must equal the registry's count.
func TestPresenceConvergesUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	NewPresenceBroadcaster(r, testMetrics())

	observer := newFakeHandle()
	r.Bind("observer", observer)

	var wg sync.WaitGroup
	for w := 0; w < 12; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := []string{"a", "b", "c", "d"}[w%4]
			for i := 0; i < 50; i++ {
				h := newFakeHandle()
				r.Bind(user, h)
				if i%3 != 0 {
					r.Unbind(h)
				}
			}
		}(w)
	}
	wg.Wait()

	want := r.OnlineUserCount()
	n, ok := lastPresence(observer)
	require.True(t, ok)
	assert.Equal(t, want, n)
}
