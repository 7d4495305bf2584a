package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/drs-api/internal/infrastructure/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Limiter admits or rejects one request for a client key.
type Limiter interface {
	Allow(key string) bool
}

// remainingReporter is implemented by limiters that can report the budget
// left in the current window.
type remainingReporter interface {
	Remaining(key string) int
}

// RateLimit returns middleware that rejects requests over the limiter's budget
// with 429. Requests are keyed by the client IP ips resolves. scope labels
// metrics and logs.
func RateLimit(l Limiter, ips *IPResolver, scope string, log zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	reporter, _ := l.(remainingReporter)
	sampled := &rate.Sometimes{First: 3, Interval: 10 * time.Second}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ips.ClientIP(r)
			allowed := l.Allow(ip)
			if reporter != nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(reporter.Remaining(ip)))
			}
			if !allowed {
				m.RateLimitRejected(scope)
				sampled.Do(func() {
					log.Warn().Str("scope", scope).Str("ip", ip).Str("path", r.URL.Path).Msg("rate limit exceeded")
				})
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
