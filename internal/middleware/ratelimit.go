// Package middleware holds the HTTP middleware of the REST API.
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

const limiterIdleTimeout = 3 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	r        rate.Limit
	b        int
}

func newLimiterStore(r float64, b int) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*clientLimiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

func (ls *limiterStore) get(ip string) *rate.Limiter {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if v, ok := ls.limiters[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(ls.r, ls.b)
	ls.limiters[ip] = &clientLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

func (ls *limiterStore) prune(idle time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for ip, v := range ls.limiters {
		if time.Since(v.lastSeen) > idle {
			delete(ls.limiters, ip)
		}
	}
}

func (ls *limiterStore) cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ls.prune(limiterIdleTimeout)
		}
	}
}

// RateLimit limits each client IP to rps requests per second with the given
// burst. Idle limiters are dropped until ctx is done. A non-positive rps
// disables limiting.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}

	store := newLimiterStore(rps, burst)
	go store.cleanup(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.get(realIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP extracts the client IP from common proxy headers or RemoteAddr.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
