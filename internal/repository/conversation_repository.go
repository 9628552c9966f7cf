package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/rofiliofernandes/somudai/internal/errors"
	"github.com/rofiliofernandes/somudai/internal/models"
	"gorm.io/gorm"
)

// ConversationRepository persists conversations and their append-only messages
type ConversationRepository interface {
	// FindConversation returns ErrConversationNotFound when the pair has no conversation yet.
	FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	// CreateConversation returns ErrDuplicateConversation when the pair already has one.
	CreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID, receiverID, body string, at time.Time) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindConversation looks up the conversation for the unordered pair
func (r *conversationRepository) FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	a, b := models.PairKey(userA, userB)

	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&conv).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation inserts a conversation for the pair, relying on the
// composite unique index to reject a second one
func (r *conversationRepository) CreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidInput
	}

	conv := &models.Conversation{ParticipantA: userA, ParticipantB: userB}
	err := r.db.WithContext(ctx).Create(conv).Error
	if isUniqueViolation(err) {
		return nil, apperrors.ErrDuplicateConversation
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage writes the next message of a conversation in one transaction.
// Bumping message_count first takes the row lock, so concurrent appends to the
// same conversation get consecutive Seq values and non-decreasing timestamps.
func (r *conversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, receiverID, body string, at time.Time) (*models.Message, error) {
	var msg *models.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("message_count", gorm.Expr("message_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrConversationNotFound
		}

		var conv models.Conversation
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return err
		}

		createdAt := at.UTC()
		if conv.LastMessageAt != nil && createdAt.Before(*conv.LastMessageAt) {
			createdAt = conv.LastMessageAt.UTC()
		}

		msg = &models.Message{
			ConversationID: conv.ID,
			Seq:            conv.MessageCount,
			SenderID:       senderID,
			ReceiverID:     receiverID,
			Body:           body,
			CreatedAt:      createdAt,
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumns(map[string]interface{}{
				"last_message_at": createdAt,
				"updated_at":      createdAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation's messages oldest first
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	messages := make([]*models.Message, 0)
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}

// ListConversations returns the user's conversations, most recently active first
func (r *conversationRepository) ListConversations(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	conversations := make([]*models.Conversation, 0)
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Limit(limit).
		Find(&conversations).Error
	return conversations, err
}
