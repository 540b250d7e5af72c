package middlewares

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"msgboard/internal/api/models"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	visitors map[string]*Visitor
	mutex    sync.Mutex
	rate     int
	window   time.Duration
	cleanup  time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type Visitor struct {
	lastSeen time.Time
	count    int
	window   time.Time
}

// NewRateLimiter allows rate requests per key in each window. Idle visitors
// are forgotten by a background goroutine until Stop is called.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(rate, window, time.Now)
	go rl.cleanupExpiredVisitors()
	return rl
}

func newRateLimiter(rate int, window time.Duration, now func() time.Time) *RateLimiter {
	cleanup := 10 * time.Minute
	if window > cleanup {
		cleanup = window
	}
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		rate:     rate,
		window:   window,
		cleanup:  cleanup,
		now:      now,
		stop:     make(chan struct{}),
	}
}

// RateLimit middleware rejects requests over the limiter's budget, keyed by
// client IP.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := limiter.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			models.Abort(c, models.NewAPIError(
				models.ErrCodeRateLimitExceeded,
				fmt.Sprintf("Rate limit exceeded: %d per %s", limiter.rate, limiter.window),
				http.StatusTooManyRequests,
			))
			return
		}

		c.Next()
	}
}

// Allow records a request for key. When the budget is spent it reports false
// and how long until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	visitor, exists := rl.visitors[key]

	if !exists {
		rl.visitors[key] = &Visitor{
			lastSeen: now,
			count:    1,
			window:   now,
		}
		return true, 0
	}

	visitor.lastSeen = now

	// Reset counter if window has passed
	if now.Sub(visitor.window) >= rl.window {
		visitor.count = 1
		visitor.window = now
		return true, 0
	}

	if visitor.count >= rl.rate {
		return false, visitor.window.Add(rl.window).Sub(now)
	}

	visitor.count++
	return true, 0
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupExpiredVisitors() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evict()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, visitor := range rl.visitors {
		if now.Sub(visitor.lastSeen) > rl.cleanup {
			delete(rl.visitors, key)
		}
	}
}
