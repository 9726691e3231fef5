package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 10.0
	defaultRateBurst = 20
	// limiterTTL is how long an idle client's limiter is kept before eviction.
	limiterTTL = 10 * time.Minute
	// evictInterval is how often the eviction sweep runs.
	evictInterval = time.Minute
)

// ipLimiter tracks a per-client token bucket and its last use.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a per-IP token bucket to incoming requests.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ipLimiter
	limit   rate.Limit
	burst   int
}

// newRateLimiter creates a rateLimiter and starts its eviction loop.
// The returned stop function terminates the loop.
func newRateLimiter(limit float64, burst int) (*rateLimiter, func()) {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	rl := &rateLimiter{
		clients: make(map[string]*ipLimiter),
		limit:   rate.Limit(limit),
		burst:   burst,
	}
	done := make(chan struct{})
	go rl.evictLoop(done)
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// allow reports whether the client identified by ip may proceed.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// evictLoop periodically drops limiters for clients idle longer than limiterTTL.
func (rl *rateLimiter) evictLoop(done <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterTTL)
			rl.mu.Lock()
			for ip, cl := range rl.clients {
				if cl.lastSeen.Before(cutoff) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// middleware rejects requests over the per-IP budget with 429.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, without the port, from a request.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
