package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"jobpilot/services"
	"jobpilot/utils"
)

// RequireToken admits requests carrying a valid trigger bearer token.
func RequireToken(tokens *services.TriggerTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			utils.UnauthorizedError(c, "Bearer token required", nil)
			c.Abort()
			return
		}
		claims, err := tokens.Validate(strings.TrimSpace(raw))
		if err != nil {
			utils.UnauthorizedError(c, "Invalid token", err)
			c.Abort()
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}
