package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"jobpilot/utils"
)

// RateLimiter gives every client IP a token bucket of `burst` requests that
// refills over `window`.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	burst    int
	window   time.Duration
	every    rate.Limit
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		burst:    burst,
		window:   window,
		every:    rate.Every(window / time.Duration(burst)),
		stop:     make(chan struct{}),
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Limit rejects requests over the client's budget with 429.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiterFor(c.ClientIP(), time.Now()).Allow() {
			retry := rl.window / time.Duration(rl.burst)
			c.Header("Retry-After", formatSeconds(retry))
			utils.ErrorResponseWithCode(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

// cleanup forgets clients idle for two windows.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.Itoa(max(1, int(d.Round(time.Second)/time.Second)))
}
