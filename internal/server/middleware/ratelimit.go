package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client's limiter survives before the sweep
// removes it.
const staleAfter = 10 * time.Minute

// sweepEvery bounds how many new clients accumulate between sweeps.
const sweepEvery = 256

// clientLimiters tracks one token bucket per client IP.
type clientLimiters struct {
	perMinute int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	added   int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	c, ok := cl.clients[ip]
	if !ok {
		c = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(cl.perMinute)/60.0), cl.perMinute),
		}
		cl.clients[ip] = c
		cl.added++
		if cl.added >= sweepEvery {
			cl.sweepLocked()
			cl.added = 0
		}
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

// sweepLocked drops limiters idle past staleAfter. Caller holds mu.
func (cl *clientLimiters) sweepLocked() {
	cutoff := time.Now().Add(-staleAfter)
	for ip, c := range cl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(cl.clients, ip)
		}
	}
}

// RateLimit returns middleware applying a per-client-IP token bucket of
// perMinute requests per minute with a full-window burst. A non-positive
// perMinute disables limiting.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiters := &clientLimiters{
		perMinute: perMinute,
		clients:   make(map[string]*clientLimiter),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			if !limiters.allow(extractClientIP(r)) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	// Check X-Forwarded-For first (may contain multiple IPs).
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	// Check X-Real-IP.
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
