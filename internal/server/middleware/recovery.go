package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/inematds/inemavox/internal/observability"
)

// ErrorResponse mirrors the API error envelope for responses written from
// inside the middleware chain, where the errors package is not in play.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery converts handler panics into a 500 error envelope instead of a
// torn connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			observability.CLILogger.Error("handler panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestID(r.Context())))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{
				Code:      "INTERNAL_ERROR",
				Message:   fmt.Sprintf("panic: %v", rec),
				RequestID: GetRequestID(r.Context()),
			}})
		}()
		next.ServeHTTP(w, r)
	})
}
