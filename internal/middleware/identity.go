package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the acting user's id, attached by the upstream
	// gateway after it has authenticated the session. This service performs
	// no authentication of its own; identity is an explicit parameter of
	// every operation, never ambient state.
	UserIDHeader = "X-User-ID"

	userIDKey = "user_id"
)

// Identity requires a user id on the request and stashes it in the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(UserIDHeader)
		if uid == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    400,
				"message": "missing " + UserIDHeader + " header",
			})
			c.Abort()
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// GetUserID returns the acting user's id set by Identity.
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
