package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/unajo/vt/internal/httpx"
)

const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey hides admin endpoints entirely when no key is configured.
func RequireAdminKey(adminKey string, next http.Handler) http.Handler {
	if adminKey == "" {
		return http.NotFoundHandler()
	}
	want := []byte(adminKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(AdminKeyHeader)), want) != 1 {
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
