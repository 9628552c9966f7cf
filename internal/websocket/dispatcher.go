package websocket

import (
	"sync/atomic"

	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/models"
	"go.uber.org/zap"
)

// closer is implemented by handles that own a transport (Client does)
type closer interface {
	Close()
}

// Dispatcher pushes notifications to every live handle of a user.
// Delivery is best effort: an offline user is not an error, and a handle that
// rejects a frame is unbound and released.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.Metrics

	// release tears down a handle that rejected a frame. NewHub points it at
	// Lifecycle.DisconnectHandle so the session is closed too.
	release func(Handle)

	delivered atomic.Int64
	dropped   atomic.Int64
	offline   atomic.Int64
}

// NewDispatcher creates a dispatcher over registry
func NewDispatcher(registry *Registry, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.Get()
	}
	return &Dispatcher{registry: registry, metrics: m, release: closeHandle}
}

func closeHandle(h Handle) {
	if c, ok := h.(closer); ok {
		c.Close()
	}
}

// NotifyUser sends message to each handle bound to userID and returns how
// many accepted it. The count is for observability only.
func (d *Dispatcher) NotifyUser(userID string, message *Message) int {
	handles := d.registry.Lookup(userID)
	if len(handles) == 0 {
		d.offline.Add(1)
		d.metrics.NotificationsTotal.WithLabelValues(message.Type, "offline").Inc()
		return 0
	}

	delivered := 0
	for _, h := range handles {
		if err := h.Send(message); err != nil {
			d.dropped.Add(1)
			d.metrics.NotificationsTotal.WithLabelValues(message.Type, "dropped").Inc()
			logger.Log.Debug("Dropping stale connection after failed send",
				logger.WithUserID(userID),
				logger.WithConnID(h.ID()),
				zap.String("type", message.Type),
				zap.Error(err))

			d.registry.Unbind(h)
			go d.release(h)
			continue
		}
		delivered++
		d.delivered.Add(1)
		d.metrics.NotificationsTotal.WithLabelValues(message.Type, "delivered").Inc()
	}
	return delivered
}

// NotifyNewMessage tells the receiver a direct message has been stored
func (d *Dispatcher) NotifyNewMessage(msg *models.Message) int {
	return d.NotifyUser(msg.ReceiverID, NewMessage(MessageTypeNewMessage, NewMessagePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}))
}

// NotifyLike tells a post owner their post was liked
func (d *Dispatcher) NotifyLike(ownerID string, actor *models.User, postID string) int {
	return d.NotifyUser(ownerID, NewMessage(MessageTypeLike, activity(ownerID, actor, postID, "Your post was liked")))
}

// NotifyComment tells a post owner someone commented
func (d *Dispatcher) NotifyComment(ownerID string, actor *models.User, comment *models.Comment) int {
	payload := activity(ownerID, actor, comment.PostID, "New comment on your post")
	payload.CommentID = comment.ID
	payload.Text = comment.Text
	return d.NotifyUser(ownerID, NewMessage(MessageTypeComment, payload))
}

// NotifyFollow tells a user they have a new follower
func (d *Dispatcher) NotifyFollow(followeeID string, actor *models.User) int {
	return d.NotifyUser(followeeID, NewMessage(MessageTypeFollow, activity(followeeID, actor, "", "You have a new follower")))
}

func activity(targetID string, actor *models.User, subjectID, text string) ActivityPayload {
	summary := actor.Summary()
	return ActivityPayload{
		ActorID:      actor.ID,
		ActorDetails: &summary,
		TargetID:     targetID,
		SubjectID:    subjectID,
		Message:      text,
	}
}

// DispatchStats is a point-in-time view of dispatcher counters
type DispatchStats struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Offline   int64 `json:"offline"`
}

// Stats returns the dispatcher's counters
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Offline:   d.offline.Load(),
	}
}
