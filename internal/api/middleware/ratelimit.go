package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware implements per-client-IP rate limiting
type RateLimitMiddleware struct {
	perMinute int
	visitors  map[string]*visitor
	mu        sync.RWMutex
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
// The cleanup goroutine exits when ctx is cancelled.
func NewRateLimitMiddleware(ctx context.Context, perMinute int) *RateLimitMiddleware {
	m := &RateLimitMiddleware{
		perMinute: perMinute,
		visitors:  make(map[string]*visitor),
	}

	go m.cleanupLimiters(ctx)

	return m
}

// RateLimit enforces the per-minute budget for each client IP
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		if !m.getLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			respondJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getLimiter gets or creates a rate limiter for a client
func (m *RateLimitMiddleware) getLimiter(key string) *rate.Limiter {
	m.mu.RLock()
	v, exists := m.visitors[key]
	m.mu.RUnlock()

	if exists {
		m.mu.Lock()
		v.lastSeen = time.Now()
		m.mu.Unlock()
		return v.limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if v, exists := m.visitors[key]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	// Rate per minute converted to per second
	ratePerSecond := float64(m.perMinute) / 60.0
	limiter := rate.NewLimiter(rate.Limit(ratePerSecond), m.perMinute)
	m.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}

	return limiter
}

// cleanupLimiters removes idle limiters periodically
func (m *RateLimitMiddleware) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-limiterIdleTTL))
		}
	}
}

func (m *RateLimitMiddleware) evictIdle(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(m.visitors, key)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
