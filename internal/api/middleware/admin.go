package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminChecker is the subset of identity.Registry the admin gate needs,
// narrowed to an interface to avoid an import cycle between middleware
// and identity.
type AdminChecker interface {
	IsAdmin(ctx context.Context, owner string) (bool, error)
	EnsureSeeded(ctx context.Context, owner string) error
}

// RequireAdmin gates a route group to current admins, lazily seeding the
// first caller as admin if the admin set is still empty.
func RequireAdmin(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := GetOwner(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": "unauthorized"}})
			c.Abort()
			return
		}

		if err := checker.EnsureSeeded(c.Request.Context(), owner); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": "failed to check admin set"}})
			c.Abort()
			return
		}

		ok, err := checker.IsAdmin(c.Request.Context(), owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "internal_error", "message": "failed to check admin status"}})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": "forbidden", "message": "identity is not an admin"}})
			c.Abort()
			return
		}

		c.Next()
	}
}
