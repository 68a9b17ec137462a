package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/andrew/mentor-gateway/internal/auth"
)

// AdminAuth guards write endpoints with the configured admin token
type AdminAuth struct {
	token string
}

// NewAdminAuth creates a new admin token middleware
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: token}
}

// Authenticate rejects requests without a matching bearer token.
// When no admin token is configured the guarded endpoints are disabled.
func (m *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			respondJSON(w, http.StatusForbidden, map[string]string{
				"error": "admin endpoints are disabled; set MENTOR_ADMIN_TOKEN",
			})
			return
		}

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "missing or invalid authorization header",
			})
			return
		}

		if !auth.TokenMatches(m.token, token) {
			respondJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "invalid admin token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
