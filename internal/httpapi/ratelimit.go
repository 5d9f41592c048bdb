package httpapi

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ownerLimiter throttles requests per x-user-id using golang.org/x/time/rate,
// distinct from internal/ratelimiter's hourly send budget: this guards the
// HTTP surface itself against a single caller hammering the façade, not the
// downstream mail send rate.
type ownerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newOwnerLimiter(limit rate.Limit, burst int) *ownerLimiter {
	return &ownerLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (o *ownerLimiter) forOwner(owner string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[owner]
	if !ok {
		l = rate.NewLimiter(o.limit, o.burst)
		o.limiters[owner] = l
	}
	return l
}

func (o *ownerLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !o.forOwner(owner).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
