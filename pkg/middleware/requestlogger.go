package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sonic7adarsh/bharatapp/pkg/logger"
)

// EnrichLogger copies the authenticated user into the logging context and
// stores base, enriched with every id known so far, as the context logger.
// Layers that learn a new id later in the chain call it again.
func EnrichLogger(ctx context.Context, base *slog.Logger) context.Context {
	if userID := UserIDFromContext(ctx); userID != "" && logger.UserIDFromContext(ctx) == "" {
		ctx = logger.WithUserID(ctx, userID)
	}
	return logger.NewContext(ctx, logger.WithContext(ctx, base))
}

// RequestLogger installs the enriched context logger for handlers. Mount it
// after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(EnrichLogger(r.Context(), base)))
		})
	}
}
