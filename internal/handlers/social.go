package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/util"
)

// LikePost likes a post and notifies its owner
// PUT /api/v1/post/like/:id
func (h *Handlers) LikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	post, err := h.social.LikePost(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "post": post})
}

// UnlikePost removes the caller's like
// PUT /api/v1/post/dislike/:id
func (h *Handlers) UnlikePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	post, err := h.social.UnlikePost(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "post": post})
}

// CommentOnPost adds a comment
// POST /api/v1/post/comment/:id
func (h *Handlers) CommentOnPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	comment, err := h.social.AddComment(c.Request.Context(), userID, c.Param("id"), req.Text)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "comment": comment})
}

// FollowUser follows or unfollows :id
// POST /api/v1/user/follow/:id
func (h *Handlers) FollowUser(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	following, err := h.social.FollowOrUnfollow(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondWithError(c, err)
		return
	}

	message := "User unfollowed successfully"
	if following {
		message = "User followed successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"following": following,
		"message":   message,
	})
}
