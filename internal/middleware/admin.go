package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rofiliofernandes/somudai/internal/models"
	"github.com/rofiliofernandes/somudai/internal/util"
)

// UserLookup loads the account behind an authenticated user id
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// RequireAdmin lets the request through only when the authenticated user is
// an admin. The role is read from the store, not trusted from the token.
func RequireAdmin(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := util.GetUserIDFromContext(c)
		if !ok {
			c.Abort()
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			util.RespondUnauthorized(c, "user not found")
			c.Abort()
			return
		}

		if !user.IsAdmin() {
			util.RespondForbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
