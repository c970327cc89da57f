package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobpilot/utils"
)

// MaxRequestSize limits the request body size.
func MaxRequestSize(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}

// ValidateJSON rejects bodies that are not declared as JSON. Requests without
// a body pass, so POST /api/run can be triggered with an empty request.
func ValidateJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodDelete, http.MethodOptions, http.MethodHead:
			c.Next()
			return
		}
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		if !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
			utils.BadRequestError(c, "Content-Type must be application/json", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
