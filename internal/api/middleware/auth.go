package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Key sources, in lookup order. The query parameter exists because the UI's
// download links are plain anchors and cannot carry headers.
const (
	apiKeyHeader = "X-API-Key"
	bearerPrefix = "Bearer "
	apiKeyParam  = "key"
)

// APIKeyAuth creates a middleware that validates API key authentication.
// An empty apiKey disables the check.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestAPIKey(r)

			var reason string
			switch {
			case key == "":
				reason = "missing API key"
			case subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1:
				reason = "invalid API key"
			default:
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("request rejected",
				"reason", reason,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
			writeJSONError(w, http.StatusUnauthorized, reason)
		})
	}
}

// requestAPIKey returns the first key found in the header, a bearer token
// or the query string.
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok && token != "" {
		return token
	}
	return r.URL.Query().Get(apiKeyParam)
}

// CORS adds permissive CORS headers so the API can be called from any page.
// Content-Disposition is exposed so scripted downloads can read the filename.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+apiKeyHeader+", Authorization")
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Length")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
