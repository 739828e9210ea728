package middleware

import (
	"net/http"
	"time"
)

type durationObserver interface {
	ObserveDuration(operation string, seconds float64)
}

// MetricsMiddleware observes request duration labelled by the matched route pattern
// Must wrap the mux directly: the mux sets Request.Pattern after routing
func MetricsMiddleware(o durationObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			pattern := r.Pattern
			if pattern == "" {
				pattern = "unmatched"
			}
			o.ObserveDuration("http "+pattern, time.Since(start).Seconds())
		})
	}
}
