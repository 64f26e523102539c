// Package errors maps domain errors onto the HTTP error envelope shared by
// every JSON endpoint.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/ticketops/internal/dispatch"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// HTTPError is the error payload inside HTTPErrorResponse.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON error envelope returned by every endpoint.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// NewHTTPErrorResponse builds an envelope with the given code and message.
func NewHTTPErrorResponse(code, message string) HTTPErrorResponse {
	return HTTPErrorResponse{Error: HTTPError{Code: code, Message: message}}
}

// WriteHTTPError writes the envelope as JSON with the given status.
func WriteHTTPError(w http.ResponseWriter, status int, resp HTTPErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RespondWithError classifies err into a status code and error code, then
// writes the standard envelope. Unclassified errors become 500s with the
// message suppressed.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := Classify(err)
	if reqID := requestIDFrom(r); reqID != "" {
		resp.Error.RequestID = reqID
	}
	WriteHTTPError(w, status, resp)
}

// Classify maps a domain error to its HTTP status and envelope.
func Classify(err error) (int, HTTPErrorResponse) {
	var verr *dispatch.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, NewHTTPErrorResponse("VALIDATION_ERROR", verr.Message)
	}

	var uerr *dispatch.UnknownOperationError
	if errors.As(err, &uerr) {
		return http.StatusNotFound, NewHTTPErrorResponse("NOT_FOUND", uerr.Error())
	}

	var serr *dispatch.SubmissionError
	if errors.As(err, &serr) {
		resp := NewHTTPErrorResponse("QUEUE_UNAVAILABLE", serr.Message)
		if serr.JobID != 0 {
			resp.Error.Details = map[string]any{"job_id": serr.JobID}
		}
		return http.StatusServiceUnavailable, resp
	}

	var ferr *ops.FormatError
	if errors.As(err, &ferr) {
		return http.StatusBadRequest, NewHTTPErrorResponse("FORMAT_NOT_SUPPORTED", ferr.Error())
	}

	if jobstore.IsNotFound(err) {
		return http.StatusNotFound, NewHTTPErrorResponse("NOT_FOUND", err.Error())
	}

	if jobstore.IsStateError(err) {
		return http.StatusConflict, NewHTTPErrorResponse("JOB_STATE_ERROR", err.Error())
	}

	if ticketapi.IsThrottled(err) {
		return http.StatusTooManyRequests, NewHTTPErrorResponse("RATE_LIMITED", err.Error())
	}

	return http.StatusInternalServerError, NewHTTPErrorResponse("INTERNAL_ERROR", "internal server error")
}

// requestIDFrom reads the inbound request id header, if any.
func requestIDFrom(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Header.Get("X-Request-ID")
}
