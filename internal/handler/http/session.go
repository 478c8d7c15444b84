package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sonic7adarsh/bharatapp/internal/service"
	"github.com/sonic7adarsh/bharatapp/pkg/httputil"
	"github.com/sonic7adarsh/bharatapp/pkg/logger"
	"github.com/sonic7adarsh/bharatapp/pkg/middleware"
)

type contextKey string

const bundleKey contextKey = "session_bundle"

// Notices hands out the messages announced to a session since its last
// request.
type Notices interface {
	Drain(sessionID string) []string
}

// envelope is the success body of the session API. Notices carries any
// announcements made to the session, such as a sign-out or an estimated
// price.
type envelope struct {
	Data    any      `json:"data"`
	Notices []string `json:"notices,omitempty"`
}

// requireSession resolves the X-Session-ID header into the session's bundle.
func requireSession(sessions *service.Sessions, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(middleware.HeaderSessionID)
			ctx := middleware.EnrichLogger(logger.WithSessionID(r.Context(), id), log)

			b, err := sessions.Get(ctx, id)
			if err != nil {
				httputil.WriteError(w, r, err, log)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, bundleKey, b)))
		})
	}
}

func bundleFrom(r *http.Request) *service.Bundle {
	b, _ := r.Context().Value(bundleKey).(*service.Bundle)
	return b
}

// respond writes data together with the session's pending notices.
func respond(w http.ResponseWriter, r *http.Request, notices Notices, status int, data any) {
	body := envelope{Data: data}
	if notices != nil {
		body.Notices = notices.Drain(logger.SessionIDFromContext(r.Context()))
	}
	httputil.WriteJSON(w, status, body)
}
