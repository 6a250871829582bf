package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Rate limit key prefixes
	RateLimitKeyPrefix = "ratelimit:"
	IPRateLimitPrefix  = "ratelimit:ip:"

	// Default rate limits
	DefaultRequestsPerMinute = 100
	DefaultBurstSize         = 20
)

// RateLimiter implements fixed one-minute window rate limiting with Redis counters
type RateLimiter struct {
	redis            *redis.Client
	requestsPerMinute int
	burstSize        int
	windowSize       time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, requestsPerMinute, burstSize int) *RateLimiter {
	return &RateLimiter{
		redis:            redisClient,
		requestsPerMinute: requestsPerMinute,
		burstSize:        burstSize,
		windowSize:       time.Minute,
	}
}

// AllowRequest checks if request is allowed under rate limit
func (rl *RateLimiter) AllowRequest(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	now := time.Now().Unix()
	windowKey := fmt.Sprintf("%s%s:%d", RateLimitKeyPrefix, key, now/60) // 1-minute window

	// Increment counter
	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, rl.windowSize+time.Second) // Small buffer
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	count := incrCmd.Val()

	// Check limit
	limit := int64(rl.requestsPerMinute)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := time.Unix((now/60+1)*60, 0)

	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: resetTime,
		RetryAfter: time.Until(resetTime),
	}

	// Allow burst
	if count <= int64(rl.requestsPerMinute+rl.burstSize) {
		return true, info, nil
	}

	return false, info, nil
}

// RateLimitInfo contains rate limit information
type RateLimitInfo struct {
	Limit      int64         `json:"limit"`
	Remaining  int64         `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after"`
}

// IPRateLimitMiddleware creates middleware for IP-based rate limiting
func IPRateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			key := fmt.Sprintf("%s%s", IPRateLimitPrefix, ip)

			allowed, info, err := limiter.AllowRequest(r.Context(), key)
			if err != nil {
				// Fail closed: a rate limit store error rejects the request
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(info.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(info.RetryAfter.Seconds()), 10))
				writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts client IP from request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (load balancer)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take first IP if multiple (comma-separated)
		for i, c := range xff {
			if c == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	// Check X-Real-IP header (nginx)
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	// Fallback to RemoteAddr
	return r.RemoteAddr
}

