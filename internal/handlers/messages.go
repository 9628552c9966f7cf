package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/util"
)

// SendMessage stores a direct message to the user in :id
// POST /api/v1/message/:id
func (h *Handlers) SendMessage(c *gin.Context) {
	senderID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	msg, err := h.messaging.SendMessage(c.Request.Context(), senderID, c.Param("id"), req.Message)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"newMessage": msg,
	})
}

// GetMessages returns the history between the caller and :id, oldest first
// GET /api/v1/message/:id
func (h *Handlers) GetMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	peerID := c.Param("id")
	messages, err := h.messaging.GetMessages(ctx, userID, peerID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	senders := map[string]models.UserSummary{}
	if len(messages) > 0 {
		if senders, err = h.summaries(ctx, []string{userID, peerID}); err != nil {
			util.RespondWithError(c, err)
			return
		}
	}

	out := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		item := messageResponse{Message: msg}
		if sender, ok := senders[msg.SenderID]; ok {
			item.Sender = &sender
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": out,
	})
}

// messageResponse is a stored message with its sender's public details
type messageResponse struct {
	*models.Message
	Sender *models.UserSummary `json:"sender,omitempty"`
}

type conversationResponse struct {
	ID            string              `json:"id"`
	PeerID        string              `json:"peer_id"`
	Peer          *models.UserSummary `json:"peer,omitempty"`
	Online        bool                `json:"online"`
	MessageCount  int64               `json:"message_count"`
	LastMessageAt *time.Time          `json:"last_message_at,omitempty"`
}

// GetConversations lists the caller's conversations, most recent first
// GET /api/v1/message?limit=
func (h *Handlers) GetConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	convs, err := h.messaging.ListConversations(ctx, userID, parseInt(c.Query("limit"), 50))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	peerIDs := make([]string, 0, len(convs))
	for _, conv := range convs {
		peerIDs = append(peerIDs, conv.Peer(userID))
	}
	byID, err := h.summaries(ctx, peerIDs)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		peerID := conv.Peer(userID)
		item := conversationResponse{
			ID:            conv.ID,
			PeerID:        peerID,
			Online:        h.hub.Registry.IsOnline(peerID),
			MessageCount:  conv.MessageCount,
			LastMessageAt: conv.LastMessageAt,
		}
		if peer, ok := byID[peerID]; ok {
			item.Peer = &peer
		}
		out = append(out, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": out,
	})
}

// summaries loads the public details of userIDs keyed by id. Unknown ids are
// left out.
func (h *Handlers) summaries(ctx context.Context, userIDs []string) (map[string]models.UserSummary, error) {
	users, err := h.social.GetUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}
	return byID, nil
}
