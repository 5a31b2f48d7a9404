package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/sensorhub/sensorhub/internal/ratelimit"
)

const telemetryPathPrefix = "/telemetry"

// QueueStats exposes the live depth of the event dispatch queue.
type QueueStats interface {
	Depth() int
}

// GlobalRateLimiter admits telemetry requests under the fleet-wide ingestion
// budget. The admission window lives in the shared store, so the budget holds
// across replicas. Store errors fail open with an error log.
func GlobalRateLimiter(log logrus.FieldLogger, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, telemetryPathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.CheckGlobal(r.Context())
			if err != nil {
				log.Errorf("global rate limit check: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !result.Allowed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Backpressure sheds telemetry load based on the dispatch queue depth. Above
// queueThreshold clients are asked to slow down, above rejectThreshold they
// are turned away until the queue drains.
func Backpressure(log logrus.FieldLogger, queue QueueStats, queueThreshold, rejectThreshold int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, telemetryPathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			depth := queue.Depth()
			if depth >= rejectThreshold {
				log.Warnf("rejecting %s %s, queue depth %d over %d", r.Method, r.URL.Path, depth, rejectThreshold)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "5")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error":       "Service unavailable due to high load",
					"retry_after": 5,
				})
				return
			}
			if depth >= queueThreshold {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error":       "Too many requests, please slow down",
					"queue_depth": depth,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimiter caps requests per client IP across the whole API surface.
func IPRateLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "Rate limit exceeded",
			})
		}),
	)
}
