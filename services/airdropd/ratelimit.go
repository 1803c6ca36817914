package airdropd

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"refdrop/observability"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per principal, falling back to the client
// host for unauthenticated requests.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	clockNow  func() time.Time
}

// NewRateLimiter builds a limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	perSecond := cfg.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*visitor),
		clockNow:  time.Now,
	}
}

// Middleware rejects callers that exceeded their budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(callerKey(r)) {
			observability.ModuleMetrics().RecordThrottle("airdropd", "rate_limit")
			writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > visitorTTL {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, id)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func callerKey(r *http.Request) string {
	if principal, ok := PrincipalFrom(r.Context()); ok {
		return "principal:" + string(principal)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "host:" + r.RemoteAddr
	}
	return "host:" + host
}
