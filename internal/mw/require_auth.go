package mw

import (
	"net/http"

	"github.com/unajo/vt/internal/httpx"
)

type AuthHandler interface {
	ValidateBearer(r *http.Request) (string, error)
}

func RequireAuth(auth AuthHandler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := auth.ValidateBearer(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="vt"`)
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		WithSubject(next, sub).ServeHTTP(w, r)
	})
}

// OptionalAuth attaches the subject when a valid token is present so that
// user-scoped rate limits can key on it. Anonymous callers pass through.
func OptionalAuth(auth AuthHandler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := auth.ValidateBearer(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		WithSubject(next, sub).ServeHTTP(w, r)
	})
}
