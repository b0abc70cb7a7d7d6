// Package errors maps application errors onto the HTTP error envelope used
// by every API response.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/inematds/inemavox/pkg/jobs"
)

// HTTPErrorResponse is the wire shape of every error reply.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError carries the machine-readable code and human message.
type HTTPError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError emits the envelope with the given status. The request id is
// taken from the X-Request-ID response header, which the request-id
// middleware sets before handlers run.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	resp := HTTPErrorResponse{Error: HTTPError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: w.Header().Get("X-Request-ID"),
	}}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondWithError maps err onto a status and code. Unknown errors become a
// 500 without leaking internals beyond the error string.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case stderrors.Is(err, jobs.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case stderrors.Is(err, jobs.ErrQueueFull):
		WriteError(w, r, http.StatusServiceUnavailable, "QUEUE_FULL", err.Error(), nil)
	default:
		WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}

// BadRequest reports a 400 with the INVALID_REQUEST code.
func BadRequest(w http.ResponseWriter, r *http.Request, message string, details any) {
	WriteError(w, r, http.StatusBadRequest, "INVALID_REQUEST", message, details)
}

// Conflict reports a 409 with the CONFLICT code.
func Conflict(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, "CONFLICT", message, nil)
}

// NotFoundHandler replies to unrouted paths with the standard envelope.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
}

// MethodNotAllowedHandler replies to wrong-method requests with the standard
// envelope.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}
