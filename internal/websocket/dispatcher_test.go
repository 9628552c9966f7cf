package websocket

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyUserOffline(t *testing.T) {
	m := testMetrics()
	r := NewRegistry()
	bystander := newFakeHandle()
	r.Bind("bob", bystander)
	d := NewDispatcher(r, m)

	n := d.NotifyUser("alice", NewMessage(MessageTypeLike, nil))

	assert.Equal(t, 0, n)
	assert.Empty(t, bystander.received())
	assert.Equal(t, 1, r.OnlineUserCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(MessageTypeLike, "offline")))
}

func TestNotifyUserDeliversExactlyOnce(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()
	r.Bind("alice", h)
	d := NewDispatcher(r, testMetrics())

	event := NewMessage(MessageTypeLike, ActivityPayload{ActorID: "bob", SubjectID: "post-1"})
	n := d.NotifyUser("alice", event)

	assert.Equal(t, 1, n)
	frames := h.received()
	require.Len(t, frames, 1)
	assert.Same(t, event, frames[0])
}

func TestNotifyUserReachesEveryConnection(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newFakeHandle(), newFakeHandle()
	r.Bind("alice", h1)
	r.Bind("alice", h2)
	d := NewDispatcher(r, testMetrics())

	n := d.NotifyUser("alice", NewMessage(MessageTypeLike, nil))

	assert.Equal(t, 2, n)
	assert.Len(t, h1.receivedOfType(MessageTypeLike), 1)
	assert.Len(t, h2.receivedOfType(MessageTypeLike), 1)
}

func TestNotifyUserDropsFailedHandle(t *testing.T) {
	m := testMetrics()
	r := NewRegistry()
	good, stale := newFakeHandle(), newFakeHandle()
	r.Bind("alice", good)
	r.Bind("alice", stale)
	stale.fail(ErrSendBufferFull)
	d := NewDispatcher(r, m)

	n := d.NotifyUser("alice", NewMessage(MessageTypeFollow, nil))

	assert.Equal(t, 1, n)
	assert.Len(t, good.receivedOfType(MessageTypeFollow), 1)
	assert.Equal(t, []string{good.ID()}, handleIDs(r.Lookup("alice")))
	require.Eventually(t, func() bool { return stale.closeCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(MessageTypeFollow, "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(MessageTypeFollow, "delivered")))
	assert.Equal(t, DispatchStats{Delivered: 1, Dropped: 1}, d.Stats())
}

func TestNotifyUserPreservesOrderPerHandle(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()
	r.Bind("alice", h)
	d := NewDispatcher(r, testMetrics())

	for i := 0; i < 20; i++ {
		d.NotifyUser("alice", NewMessage(MessageTypeLike, i))
	}

	frames := h.receivedOfType(MessageTypeLike)
	require.Len(t, frames, 20)
	for i, f := range frames {
		assert.Equal(t, i, f.Payload)
	}
}

func TestTypedNotifications(t *testing.T) {
	r := NewRegistry()
	owner := newFakeHandle()
	r.Bind("owner", owner)
	d := NewDispatcher(r, testMetrics())
	actor := &models.User{ID: "actor", Username: "bob", ProfilePicture: "bob.png"}

	d.NotifyLike("owner", actor, "post-1")
	d.NotifyFollow("owner", actor)
	d.NotifyComment("owner", actor, &models.Comment{ID: "c1", PostID: "post-1", Text: "nice"})
	d.NotifyNewMessage(&models.Message{ID: "m1", ConversationID: "conv", SenderID: "actor", ReceiverID: "owner", Body: "hi"})

	like := owner.receivedOfType(MessageTypeLike)
	require.Len(t, like, 1)
	lp := like[0].Payload.(ActivityPayload)
	assert.Equal(t, "actor", lp.ActorID)
	assert.Equal(t, "post-1", lp.SubjectID)
	assert.Equal(t, "Your post was liked", lp.Message)
	assert.Equal(t, "bob", lp.ActorDetails.Username)

	follow := owner.receivedOfType(MessageTypeFollow)
	require.Len(t, follow, 1)
	assert.Empty(t, follow[0].Payload.(ActivityPayload).SubjectID)

	comment := owner.receivedOfType(MessageTypeComment)
	require.Len(t, comment, 1)
	assert.Equal(t, "nice", comment[0].Payload.(ActivityPayload).Text)

	dm := owner.receivedOfType(MessageTypeNewMessage)
	require.Len(t, dm, 1)
	assert.Equal(t, "hi", dm[0].Payload.(NewMessagePayload).Body)
	assert.Equal(t, "actor", dm[0].Payload.(NewMessagePayload).SenderID)
}
