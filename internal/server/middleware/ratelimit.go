package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiters hands out one token bucket per key. Stale entries are cleaned
// up every 10 minutes until ctx ends.
type limiters struct {
	mu    sync.Mutex
	byKey map[string]*keyedLimiter
	limit rate.Limit
	burst int
}

func newLimiters(ctx context.Context, requestsPerSecond float64, burst int) *limiters {
	l := &limiters{
		byKey: make(map[string]*keyedLimiter),
		limit: rate.Limit(requestsPerSecond),
		burst: burst,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep(time.Now().Add(-30 * time.Minute))
			case <-ctx.Done():
				return
			}
		}
	}()

	return l
}

func (l *limiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.byKey[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = kl
	}
	kl.lastAccess = time.Now()
	return kl.limiter
}

func (l *limiters) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.byKey {
		if kl.lastAccess.Before(cutoff) {
			delete(l.byKey, key)
		}
	}
}

// allow consumes one token for key or rejects the request with 429.
func (l *limiters) allow(w http.ResponseWriter, r *http.Request, key string) bool {
	lim := l.get(key)
	res := lim.Reserve()
	if !res.OK() {
		tooMany(w, r, time.Second)
		return false
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		tooMany(w, r, delay)
		return false
	}
	return true
}

func tooMany(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	respond.Error(w, r, apperr.TooManyRequests("Too many requests, please try again later",
		apperr.WithDetails(map[string]int{"retryAfterSeconds": max(secs, 1)})))
}

// RateLimitByIP applies per-IP rate limiting for unauthenticated endpoints
// (e.g. login). Uses chi's RealIP middleware value via r.RemoteAddr.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	l := newLimiters(ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(w, r, r.RemoteAddr) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByTenant applies per-tenant rate limiting. Requests without a
// resolved tenant are not limited.
func RateLimitByTenant(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	l := newLimiters(ctx, requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenant.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !l.allow(w, r, tc.Code) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
