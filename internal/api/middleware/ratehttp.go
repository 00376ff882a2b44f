package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/expressrelay/auction-server/internal/resterr"
)

// RateLimiter throttles per-identity request bursts (bid submission,
// opportunity publication) with one token bucket per identity, adapted from
// josephblackelite-nhbchain/gateway/middleware/ratelimit.go: a limiter-per-
// bucket-key map instead of a single global limiter, keyed on the
// authenticated profile when present and falling back to client IP.
type RateLimiter struct {
	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter allowing ratePerSecond sustained requests
// per identity with burst headroom.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		visitors:      make(map[string]*rate.Limiter),
	}
}

// Middleware rejects requests once an identity exceeds its bucket.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rl.identity(r)
		if !rl.obtain(id).Allow() {
			WriteError(w, resterr.TooManyConnections("rate limit exceeded for "+id))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) identity(r *http.Request) string {
	if profileID, ok := ProfileID(r.Context()); ok {
		return "profile:" + profileID
	}
	return "ip:" + clientIP(r)
}

func (rl *RateLimiter) obtain(id string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.ratePerSecond), rl.burst)
		rl.visitors[id] = limiter
	}
	return limiter
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if comma := strings.IndexByte(ip, ','); comma > 0 {
			ip = ip[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
