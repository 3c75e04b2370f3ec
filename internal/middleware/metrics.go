package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hushboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hushboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	loginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hushboard_login_failures_total",
			Help: "Total number of failed login attempts by kind",
		},
		[]string{"kind"}, // local, oauth
	)

	secretsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hushboard_secrets_submitted_total",
			Help: "Total number of secret submissions",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)
			path := normalizePath(r)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// normalizePath uses the chi route pattern to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// IncrementLoginFailures increments the failed-login counter for a kind
// ("local" or "oauth"). Call this from the auth handlers.
func IncrementLoginFailures(kind string) {
	loginFailuresTotal.WithLabelValues(kind).Inc()
}

// IncrementSecretsSubmitted increments the secret submission counter.
func IncrementSecretsSubmitted() {
	secretsSubmittedTotal.Inc()
}
