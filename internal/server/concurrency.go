package server

import "net/http"

// ConcurrencyLimit caps how many requests run at once. A request over
// the cap is turned away with 429 rather than queued. max <= 0 disables
// the cap.
func ConcurrencyLimit(max int) func(http.Handler) http.Handler {
	if max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	slots := make(chan struct{}, max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
				next.ServeHTTP(w, r)
			default:
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorEnvelope{Error: errorBody{
					Type:    "too_many_requests",
					Message: "analysis capacity exhausted, try again shortly",
				}})
			}
		})
	}
}
