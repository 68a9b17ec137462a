package middleware

import (
	"net/http"
	"slices"
)

// CORS is a middleware that adds CORS headers
type CORS struct {
	allowedOrigins []string
}

// NewCORS creates a new CORS middleware
func NewCORS(allowedOrigins []string) *CORS {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &CORS{allowedOrigins: allowedOrigins}
}

func (c *CORS) allowOrigin(origin string) string {
	if slices.Contains(c.allowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.allowedOrigins, origin) {
		return origin
	}
	return ""
}

// Handle wraps an HTTP handler with CORS support
func (c *CORS) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := c.allowOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
