package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/kidvue/gatekeeper/internal/ratelimit"
)

// APIRateLimit returns a coarse per-IP rate limiting middleware applied
// to the whole API surface. It is a backstop against misbehaving
// clients; the login endpoint carries its own stricter limiter.
func APIRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// LoginRateLimit returns a middleware that throttles login attempts per
// client fingerprint using a fixed window. Denied requests receive a
// 429 with a Retry-After header and a retryAfter field in the body so
// clients can back off precisely.
func LoginRateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Check(ratelimit.Fingerprint(r))
			if !res.Allowed {
				retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":{"code":429,"message":"Too many login attempts, please try again later","retryAfter":%d}}`, retryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}
