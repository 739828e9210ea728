package middleware

import (
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type responseStats struct {
	status int
	size   int
}

type statsWriter struct {
	http.ResponseWriter
	stats responseStats
}

func (w *statsWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.stats.size += size
	return size, err
}

func (w *statsWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.stats.status = statusCode
}

// LoggerMiddleware writes access log line per request
// Server errors are logged with error level, so broken ledger operations stand out
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statsWriter{
				ResponseWriter: w,
				stats:          responseStats{status: http.StatusOK},
			}

			next.ServeHTTP(sw, r)

			args := []any{
				"method", r.Method,
				"uri", r.RequestURI,
				"route", r.Pattern,
				"duration", time.Since(start),
				"status", sw.stats.status,
				"size", sw.stats.size,
			}

			if sw.stats.status >= http.StatusInternalServerError {
				l.Error("HTTP request failed", args...)
				return
			}
			l.Info("got HTTP request", args...)
		})
	}
}
