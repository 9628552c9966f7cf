// Package messaging implements direct messages between two users: the
// conversation for an unordered pair is found or created, the message is
// appended, and only then is the receiver notified over the realtime channel.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/metrics"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/repository"
	"github.com/rofiliofernandes/somudai/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxBodyLength is the longest message body accepted, in runes
	MaxBodyLength = 5000

	defaultMaxAttempts = 3
)

var errConversationContention = errors.New("conversation create kept colliding")

// Notifier delivers the new-message event. Delivery is best-effort.
type Notifier interface {
	NotifyNewMessage(msg *models.Message) int
}

// Service orchestrates the send and history flows
type Service struct {
	store       repository.ConversationRepository
	notifier    Notifier
	metrics     *metrics.Metrics
	clock       clockwork.Clock
	events      *telemetry.BusinessEvents
	pairs       singleflight.Group
	maxAttempts int
}

// NewService creates the messaging service. clock may be nil.
func NewService(store repository.ConversationRepository, notifier Notifier, m *metrics.Metrics, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:       store,
		notifier:    notifier,
		metrics:     m,
		clock:       clock,
		events:      telemetry.NewBusinessEvents(),
		maxAttempts: defaultMaxAttempts,
	}
}

// SendMessage stores body from senderID to receiverID and notifies the
// receiver. The returned message is committed even if the receiver is offline.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, body string) (_ *models.Message, err error) {
	ctx, span := s.events.TraceSendMessage(ctx, senderID, receiverID)
	defer func() { telemetry.EndSpan(span, err) }()

	body = strings.TrimSpace(body)
	if err := validate(senderID, receiverID, body); err != nil {
		return nil, err
	}

	conv, err := s.findOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, conv.ID, senderID, receiverID, body, s.clock.Now())
	if errors.Is(err, apperrors.ErrConversationNotFound) {
		return nil, apperrors.NotFound("Conversation")
	}
	if err != nil {
		logger.Log.Error("Failed to append message",
			logger.WithConversationID(conv.ID),
			logger.WithUserID(senderID),
			zap.Error(err))
		return nil, apperrors.Persistence("send message", err)
	}
	s.metrics.MessagesSentTotal.Inc()

	delivered := s.notifier.NotifyNewMessage(msg)
	telemetry.RecordDispatch(span, delivered)
	logger.Log.Debug("Message sent",
		logger.WithConversationID(conv.ID),
		zap.String("message_id", msg.ID),
		zap.Int("delivered", delivered))

	return msg, nil
}

// GetMessages returns the pair's history oldest first. A pair that never
// talked has an empty history.
func (s *Service) GetMessages(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	if userA == "" || userB == "" {
		return nil, apperrors.ValidationError("user_id", "both participants are required")
	}

	conv, err := s.store.FindConversation(ctx, userA, userB)
	if errors.Is(err, apperrors.ErrConversationNotFound) {
		return []*models.Message{}, nil
	}
	if err != nil {
		return nil, apperrors.Persistence("load conversation", err)
	}

	messages, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.Persistence("load messages", err)
	}
	return messages, nil
}

// ListConversations returns userID's conversations, most recently active first
func (s *Service) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if userID == "" {
		return nil, apperrors.ValidationError("user_id", "user id is required")
	}
	convs, err := s.store.ListConversations(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Persistence("load conversations", err)
	}
	return convs, nil
}

// findOrCreate resolves the pair's conversation. Concurrent callers in this
// process share one lookup; a create that loses to another writer re-reads.
// The shared lookup outlives any single caller's cancellation, while each
// caller stops waiting when its own ctx ends.
func (s *Service) findOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	a, b := models.PairKey(userA, userB)
	shared := context.WithoutCancel(ctx)
	ch := s.pairs.DoChan(a+"\x00"+b, func() (interface{}, error) {
		ctx := shared
		for attempt := 1; attempt <= s.maxAttempts; attempt++ {
			conv, err := s.store.FindConversation(ctx, a, b)
			if err == nil {
				return conv, nil
			}
			if !errors.Is(err, apperrors.ErrConversationNotFound) {
				return nil, apperrors.Persistence("load conversation", err)
			}

			conv, err = s.store.CreateConversation(ctx, a, b)
			if err == nil {
				s.metrics.ConversationsCreated.Inc()
				return conv, nil
			}
			if !errors.Is(err, apperrors.ErrDuplicateConversation) {
				return nil, apperrors.Persistence("create conversation", err)
			}

			s.metrics.ConversationRetries.Inc()
			logger.Log.Debug("Conversation created concurrently, retrying find",
				zap.String("participant_a", a),
				zap.String("participant_b", b),
				zap.Int("attempt", attempt))
		}
		return nil, apperrors.Persistence("resolve conversation",
			fmt.Errorf("%w after %d attempts", errConversationContention, s.maxAttempts))
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Persistence("resolve conversation", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Conversation), nil
	}
}

func validate(senderID, receiverID, body string) error {
	switch {
	case senderID == "":
		return apperrors.ValidationError("sender_id", "sender is required")
	case receiverID == "":
		return apperrors.ValidationError("receiver_id", "receiver is required")
	case senderID == receiverID:
		return apperrors.ValidationError("receiver_id", "cannot message yourself")
	case body == "":
		return apperrors.ValidationError("message", "message cannot be empty")
	case utf8.RuneCountInString(body) > MaxBodyLength:
		return apperrors.ValidationError("message", fmt.Sprintf("message must be at most %d characters", MaxBodyLength))
	}
	return nil
}
