package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
	"github.com/tiptoro/tiptoro-api/internal/platform/logger"
)

// Trace assigns a trace ID to each request and stores a request logger
// carrying it in the context.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			log := base.With("trace_id", traceID)
			ctx = logger.WithLogger(ctx, log)

			w.Header().Set("X-Trace-ID", traceID)
			log.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
