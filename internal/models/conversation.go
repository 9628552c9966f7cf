package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is the single thread between an unordered pair of users.
// ParticipantA is always the lexically smaller id; the composite unique index
// on (participant_a, participant_b) is what makes find-or-create safe.
type Conversation struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParticipantA  string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversations_pair,priority:1;index" json:"participant_a"`
	ParticipantB  string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversations_pair,priority:2;index" json:"participant_b"`
	MessageCount  int64      `gorm:"not null;default:0" json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message is immutable once written. Seq is the 1-based append position
// within its conversation.
type Message struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_messages_conversation_seq,priority:1" json:"conversation_id"`
	Seq            int64     `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2" json:"seq"`
	SenderID       string    `gorm:"type:varchar(36);not null" json:"sender_id"`
	ReceiverID     string    `gorm:"type:varchar(36);not null" json:"receiver_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// PairKey normalizes two participant ids into (low, high) order
func PairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Includes reports whether userID is one of the two participants
func (c *Conversation) Includes(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Peer returns the other participant
func (c *Conversation) Peer(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	c.ParticipantA, c.ParticipantB = PairKey(c.ParticipantA, c.ParticipantB)
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

// AllModels lists every table for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&Like{},
		&Comment{},
		&Follow{},
		&Conversation{},
		&Message{},
	}
}
