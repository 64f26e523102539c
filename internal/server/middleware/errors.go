package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
)

// ErrorResponse is the JSON error envelope written by the middleware.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code, message, and diagnostics.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recovery converts a handler panic into a 500 with the standard envelope.
// The panic value goes into the message; the correlation id is taken from
// the request context when RequestID ran earlier in the chain.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec))
				if id := GetRequestID(r.Context()); id != "" {
					envelope = envelope.WithCorrelationID(id)
				}
				writeErrorResponse(w, envelope, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is the route-level alias for Recovery.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// writeErrorResponse renders a gofulmen error envelope as the JSON error
// response with the given status.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, status int) {
	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      envelope.Code,
			Message:   envelope.Message,
			RequestID: envelope.CorrelationID,
		},
	}
	if len(envelope.Context) > 0 {
		resp.Error.Details = envelope.Context
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
