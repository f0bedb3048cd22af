// Package mw holds gin middleware shared by the API routes.
package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RL keeps one token bucket per key and forgets idle keys after ttl.
type RL struct {
	mu   sync.Mutex
	m    map[string]*keyLimiter
	r    rate.Limit
	b    int
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RL {
	return &RL{m: make(map[string]*keyLimiter), r: r, b: burst, ttl: ttl, stop: make(chan struct{})}
}

// Allow takes one token from key's bucket.
func (rl *RL) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.m[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(rl.r, rl.b)}
		rl.m[key] = kl
	}
	kl.seen = time.Now()
	return kl.lim.Allow()
}

func (rl *RL) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.m {
		if now.Sub(v.seen) > rl.ttl {
			delete(rl.m, k)
		}
	}
}

func (rl *RL) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// Stop ends the idle-key sweeper.
func (rl *RL) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware limits requests per authenticated user, falling back to client IP.
func (rl *RL) Middleware(userKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(userKey)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.Allow(key + "|" + c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimit returns a per-key token bucket middleware with its sweeper running.
func RateLimit(r rate.Limit, burst int, userKey string) (gin.HandlerFunc, *RL) {
	rl := NewRateLimiter(r, burst, 2*time.Minute)
	go rl.gc()
	return rl.Middleware(userKey), rl
}
