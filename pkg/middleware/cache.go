package middleware

import "net/http"

// NoStore marks responses as private to the session. Cart, checkout and
// booking payloads change on every mutation and must never be served from
// an intermediary cache.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Add("Vary", HeaderSessionID)
		next.ServeHTTP(w, r)
	})
}
