package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows aligned to the
// window length
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	start time.Time
	used  int
}

// NewRateLimiter allows limit requests per window per key. Stop ends the
// sweeper that drops idle keys.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go rl.sweepEvery(2 * window)
	return rl
}

// Allow consumes one request for key, reporting whether it fits the window
func (rl *RateLimiter) Allow(key string) bool {
	_, ok := rl.take(key)
	return ok
}

// Remaining is the number of requests key has left in the current window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limit - rl.current(key).used
}

// ResetIn is the time until the current window closes
func (rl *RateLimiter) ResetIn() time.Duration {
	now := rl.now()
	return now.Truncate(rl.window).Add(rl.window).Sub(now)
}

// Stop ends the sweeper. It may be called more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) take(key string) (int, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.current(key)
	if b.used >= rl.limit {
		return 0, false
	}
	b.used++
	rl.buckets[key] = b
	return rl.limit - b.used, true
}

// current returns key's bucket for the window containing now, fresh if the
// stored one has expired. Caller holds mu.
func (rl *RateLimiter) current(key string) *bucket {
	start := rl.now().Truncate(rl.window)
	if b, ok := rl.buckets[key]; ok && b.start.Equal(start) {
		return b
	}
	return &bucket{start: start}
}

func (rl *RateLimiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	start := rl.now().Truncate(rl.window)
	for key, b := range rl.buckets {
		if b.start.Before(start) {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit applies limiter per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	limit := strconv.Itoa(limiter.limit)
	return func(c *gin.Context) {
		remaining, ok := limiter.take(c.ClientIP())
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limiter.ResetIn().Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ERR_RATE_LIMITED",
					"message": "Too many requests. Please try again later.",
				},
			})
			return
		}
		c.Next()
	}
}
