package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/services"
)

func TestRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := services.NewTriggerTokens("0123456789abcdef0123")
	require.NoError(t, err)
	valid, err := tokens.Issue("cron", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	router.Use(RequireToken(tokens))
	router.POST("/run", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"tampered", "Bearer " + valid + "x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/run", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, w.Body.String(), "cron")
			}
		})
	}
}
