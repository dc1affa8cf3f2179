// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strings"
)

const corsMethods = "GET, HEAD, POST, DELETE, OPTIONS"

// CORS lets browser players on the allowed origins ("*" for any) fetch
// playlists and segments and drive the session API.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	allowAll := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin := r.Header.Get("Origin"); origin != "" && (allowAll || allowed[origin]) {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", "Content-Type, Range, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "Retry-After, Content-Length, Content-Range, X-Request-ID")
			h.Set("Access-Control-Max-Age", "600")

			if vary := h.Get("Vary"); vary == "" {
				h.Set("Vary", "Origin")
			} else if !strings.Contains(vary, "Origin") {
				h.Set("Vary", vary+", Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Allow", corsMethods)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
