package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second allowed per client.
	defaultRateLimit = 10
	// defaultRateBurst lets a chat widget fire a short flurry of lookups.
	defaultRateBurst = 20
	// limiterIdleTTL is how long an unused client bucket is kept.
	limiterIdleTTL = 5 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client token bucket on the protected routes.
// Clients are keyed by remote IP, or by the first X-Forwarded-For hop when
// the server sits behind the shop backend and trustProxy is set.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket

	rps        rate.Limit
	burst      int
	trustProxy bool
	idleTTL    time.Duration

	// onReject is called with the route name for every 429.
	onReject func(route string)
}

// newRateLimiter constructs a rateLimiter and starts its eviction loop. The
// loop exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, trustProxy bool) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets:    make(map[string]*clientBucket),
		rps:        rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
		idleTTL:    limiterIdleTTL,
		onReject:   func(string) {},
	}

	done := make(chan struct{})
	var once sync.Once
	go rl.evictLoop(done)
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) allow(client string, now time.Time) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) evictLoop(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle drops buckets not seen within idleTTL of now and returns how
// many remain.
func (rl *rateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := now.Add(-rl.idleTTL)
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
	return len(rl.buckets)
}

// middleware wraps next for the named route. Rejected requests get 429 with
// a Retry-After hint and are logged at WARN.
func (rl *rateLimiter) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r, rl.trustProxy)
		if !rl.allow(client, time.Now()) {
			rl.onReject(route)
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", client),
				slog.String("route", route),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address the request is attributed to. With
// trustProxy the left-most X-Forwarded-For entry wins when present.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
