package middleware

import (
	"net/http"
	"strings"

	"schedulebot/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthMiddleware accepts HS256 bearer tokens signed with secret and stores
// their subject under "client". With no secret configured the protected routes
// are unavailable.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Tools API is not configured"})
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		subject, err := utils.ExtractSubject([]byte(secret), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("client", subject)
		c.Next()
	}
}
