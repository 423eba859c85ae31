package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"realtime-chat-service/internal/auth"
)

// ContextUserKey is the gin context key the authenticated user is stored under.
const ContextUserKey = "user"

// AuthMiddleware validates the Authorization header through the identity resolver.
func AuthMiddleware(resolver auth.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := resolver.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}
