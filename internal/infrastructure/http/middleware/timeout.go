package middleware

import (
	"context"
	"net/http"
	"time"
)

// RequestTimeout bounds every handler's context by the given duration.
// Note: this caps the context only; the server's WriteTimeout still applies
// on top of it.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
