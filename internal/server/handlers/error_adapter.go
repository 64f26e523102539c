package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/ticketops/internal/errors"
)

// HTTPErrorResponder converts an error into an HTTP response. Embedders can
// swap it to integrate their own error rendering.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// httpErrorResponder is the active responder. Defaults to the standard
// envelope mapping.
var httpErrorResponder HTTPErrorResponder = defaultHTTPErrorResponder

func defaultHTTPErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// SetHTTPErrorResponder installs a custom responder. nil restores the
// default.
func SetHTTPErrorResponder(f HTTPErrorResponder) {
	if f == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = f
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

// respondWithError routes an error through the active responder.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
