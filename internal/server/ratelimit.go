package server

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit allows Requests per Window for each client address. A zero
// value disables the limit.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit should be enforced.
func (l RateLimit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// clientLimiter holds one token bucket per client address.
//
// A bucket idle for a full window has refilled completely, so dropping it
// loses nothing. Idle buckets are swept lazily on access.
type clientLimiter struct {
	class string
	limit rate.Limit
	burst int
	idle  time.Duration
	nowFn func() time.Time

	mu        sync.Mutex
	clients   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when l is disabled.
func newClientLimiter(class string, l RateLimit) *clientLimiter {
	if !l.Enabled() {
		return nil
	}
	return &clientLimiter{
		class:   class,
		limit:   rate.Every(l.Window / time.Duration(l.Requests)),
		burst:   l.Requests,
		idle:    l.Window,
		nowFn:   time.Now,
		clients: make(map[string]*limiterEntry),
	}
}

// allow consumes one token for key.
func (c *clientLimiter) allow(key string) bool {
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= c.idle {
		for k, e := range c.clients {
			if now.Sub(e.lastSeen) >= c.idle {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	e, ok := c.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// size returns the number of tracked clients.
func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// limit rejects requests over l with a 429. A nil limiter admits everything.
func (s *Server) limit(l *clientLimiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !l.allow(ip) {
			s.metrics.RecordRateLimited(l.class)
			s.logger.Warn("rate limit exceeded",
				"category", categoryRateLimit,
				"class", l.class,
				"ip", ip,
				"user_agent", r.UserAgent(),
				"endpoint", r.URL.Path,
			)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error: "Too many requests from this IP, please try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
