package middleware

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"
)

// SubmitLimiter throttles job submissions across all clients. The pipeline
// runs one job at a time anyway, so there is no reason to accept a flood of
// submissions faster than the limiter allows.
func SubmitLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{
					Code:      "RATE_LIMITED",
					Message:   "too many submissions; slow down",
					RequestID: GetRequestID(r.Context()),
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
