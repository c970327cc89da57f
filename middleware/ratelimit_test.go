package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Limit())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func get(router *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = addr
	router.ServeHTTP(w, req)
	return w
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Stop()

	assert.Equal(t, 5, rl.burst)
	assert.Equal(t, time.Minute, rl.window)
	assert.NotNil(t, rl.visitors)
}

func TestRateLimiter_ExceedLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()
	router := limitedRouter(rl)

	for i := 0; i < 3; i++ {
		w := get(router, "127.0.0.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	w := get(router, "127.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1000").Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Now()
	rl.limiterFor("10.0.0.1", now.Add(-3*time.Minute))
	rl.limiterFor("10.0.0.2", now)

	rl.cleanup(now)
	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}
