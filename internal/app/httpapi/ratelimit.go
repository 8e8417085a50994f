package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles requests per caller key (bearer token, or source IP
// for unauthenticated callers), grounded on the teacher's
// infrastructure/middleware/ratelimit.go but trimmed to the single
// fixed-window-via-token-bucket shape this API needs.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newRateLimiter returns a limiter allowing requestsPerSecond sustained,
// bursting up to burst. It does not itself disable limiting for
// requestsPerSecond <= 0; NewService passes a nil limiter in that case,
// which wrapWithRateLimit skips.
func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// cleanup drops tracked limiters once the set grows unreasonably large, the
// teacher's own crude bound against unauthenticated-caller cardinality
// (infrastructure/middleware/ratelimit.go's Cleanup).
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

func callerKey(r *http.Request) string {
	if header := r.Header.Get("Authorization"); len(header) > len("Bearer ") {
		return header[len("Bearer "):]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// wrapWithRateLimit rejects requests beyond rl's budget with 429, unless rl
// is nil (limiting disabled).
func wrapWithRateLimit(next http.Handler, rl *rateLimiter) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getLimiter(callerKey(r))
		if !limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// startCleanup periodically prunes rl's limiter set until the returned stop
// func is called.
func (rl *rateLimiter) startCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
