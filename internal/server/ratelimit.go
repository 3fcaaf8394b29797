// Token bucket rate limiting for the write path.

package server

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// writeLimiter throttles mutating requests. A single bucket is enough:
// the server has exactly one user, the limit exists to absorb runaway
// clients, not to arbitrate between them.
type writeLimiter struct {
	limiter *rate.Limiter
}

// newWriteLimiter allows requests tokens per window with burst capacity.
func newWriteLimiter(requests int, window time.Duration, burst int) *writeLimiter {
	perSecond := float64(requests) / window.Seconds()
	return &writeLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// middleware rejects mutating requests once the bucket is empty.
func (l *writeLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		res := l.limiter.Reserve()
		if !res.OK() {
			writeError(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "Rate limit exceeded")
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
