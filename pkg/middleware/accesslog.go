package middleware

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
)

// AccessLog logs one line per request with status, size and latency. It must
// run inside RequestID so the line carries the request id.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log := logger.FromContext(r.Context())
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", clientIP(r),
		}
		if sw.status >= http.StatusInternalServerError {
			log.Error("request completed", attrs...)
			return
		}
		log.Info("request completed", attrs...)
	})
}
