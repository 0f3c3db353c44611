package middleware

import (
	"log/slog"
	"net/http"
	"time"

	ctxutil "3tcapital/hacienda_client/internal/infrastructure/context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// RequestLogger returns a middleware that logs HTTP requests and responses
// and threads a correlation id through the request context. An inbound
// X-Correlation-ID header wins so a caller can tie our audit rows to its own
// trace; otherwise the Chi request id is used, and one is minted as a last
// resort. The id is echoed back in the response header either way.
// Log levels are determined by status code:
//   - Info: 2xx, 3xx
//   - Warn: 4xx
//   - Error: 5xx
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = chimw.GetReqID(r.Context())
			}
			if correlationID == "" {
				correlationID = ctxutil.NewCorrelationID()
			}
			ctx := ctxutil.WithCorrelationID(r.Context(), correlationID)

			w.Header().Set("X-Correlation-ID", correlationID)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / 1e6

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rw.statusCode,
				"duration_ms", durationMs,
				"bytes", rw.bytesWritten,
				"correlation_id", correlationID,
			}

			if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
				attrs = append(attrs, "user_agent", userAgent)
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("HTTP request", attrs...)
			case rw.statusCode >= 400:
				log.Warn("HTTP request", attrs...)
			default:
				log.Info("HTTP request", attrs...)
			}
		})
	}
}
