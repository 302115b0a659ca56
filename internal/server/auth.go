package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyMiddleware rejects requests that do not present one of the
// configured keys. The key rides the Authorization header (with or
// without a Bearer prefix) or the X-API-Key header.
func APIKeyMiddleware(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidate := r.Header.Get("X-API-Key")
			if candidate == "" {
				candidate = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if candidate == "" {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{
					Type:    "unauthorized",
					Message: "missing API key",
				}})
				return
			}

			for _, key := range keys {
				if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: errorBody{
				Type:    "unauthorized",
				Message: "invalid API key",
			}})
		})
	}
}
