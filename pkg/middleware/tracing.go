package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/tracing"
)

// Tracing starts a root span per request and logs the finished span tree.
// The trace id is the request id, so RequestID must run first. When disabled
// it returns next unchanged.
func Tracing(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r.Context()))
			defer func() {
				span.End()
				span.Log()
			}()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
