package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/foodcart/pkg/logger"
)

// SessionFunc returns a fingerprint of the session a request acts on, or "".
type SessionFunc func(r *http.Request) string

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, session, trace_id and span_id. Handlers get it back with
// logger.FromContext. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger, session SessionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if session != nil {
				if fp := session(r); fp != "" {
					ctx = logger.WithSession(ctx, fp)
				}
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
