package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/util"
)

// GetAdminOverview returns platform totals and the live online count
// GET /api/v1/admin/overview
func (h *Handlers) GetAdminOverview(c *gin.Context) {
	overview, err := h.social.Overview(c.Request.Context(), parseInt(c.Query("recent"), 5))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GetOnlineUsers lists the users holding at least one live connection and
// every live session, identified or not
// GET /api/v1/admin/online
func (h *Handlers) GetOnlineUsers(c *gin.Context) {
	ids := h.hub.Registry.OnlineUsers()
	users, err := h.social.GetUsers(c.Request.Context(), ids)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}

	c.JSON(http.StatusOK, gin.H{
		"online_users": len(ids),
		"users":        summaries,
		"sessions":     h.hub.Lifecycle.Sessions(),
	})
}
