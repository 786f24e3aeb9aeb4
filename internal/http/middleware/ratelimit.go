package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per caller key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{limiters: make(map[string]*rate.Limiter), limit: rate.Limit(perSecond), burst: burst}
}

// Allow consumes one token for key.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

// RateLimit rejects callers exceeding the rate with 429. Authenticated
// operators are keyed by subject, everyone else by remote address.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewKeyedLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if claims, ok := OperatorFromContext(r.Context()); ok && claims.Subject != "" {
				key = "operator:" + claims.Subject
			}
			if !limiter.Allow(key) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
