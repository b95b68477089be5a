package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per sender.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per sender, all of which may arrive
// at once.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// getLimiter returns the rate limiter for a given sender, creating one if it doesn't exist.
func (s *RateLimiter) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup forgets senders idle for longer than idle and returns how many went.
func (s *RateLimiter) Cleanup(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, v := range s.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(s.visitors, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *RateLimiter) StartCleanup(ctx context.Context, every, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(idle)
			}
		}
	}()
}

// senderKey identifies the sender: the Twilio "From" field when present,
// otherwise the client IP.
func senderKey(c *gin.Context) string {
	if from := c.PostForm("From"); from != "" {
		return from
	}
	return c.ClientIP()
}

// RateLimitMiddleware limits requests per sender.
func RateLimitMiddleware(store *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := senderKey(c)
		if !store.getLimiter(key).Allow() {
			zap.L().Warn("Rate limit exceeded", zap.String("sender", key))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}
