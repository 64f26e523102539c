package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/dispatch"
	"github.com/3leaps/ticketops/pkg/ops"
)

// OpsHandler serves the operation catalog and execution endpoints.
type OpsHandler struct {
	Registry   *ops.Registry
	Dispatcher *dispatch.Dispatcher
	Log        *zap.Logger
}

// ExecuteRequest is the body of POST /v1/ops/{slug}/execute.
type ExecuteRequest struct {
	Input map[string]string `json:"input"`
	Owner string            `json:"owner,omitempty"`
}

// List serves GET /v1/ops: every registered operation's descriptor.
func (h *OpsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": h.Registry.All(),
	})
}

// Fields serves GET /v1/ops/{slug}/fields: the operation's form schema.
func (h *OpsHandler) Fields(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	op := h.Registry.Get(slug)
	if op == nil {
		respondWithError(w, r, &dispatch.UnknownOperationError{Slug: slug})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":   slug,
		"fields": op.FormFields(r.Context()),
	})
}

// Execute serves POST /v1/ops/{slug}/execute. Inline runs answer 200 with
// the result; background runs answer 202 with the job reference.
func (h *OpsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, &dispatch.ValidationError{Slug: slug, Message: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Owner == "" {
		req.Owner = "api"
	}

	out, err := h.Dispatcher.Dispatch(r.Context(), slug, req.Input, req.Owner)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if out.Async {
		writeJSON(w, http.StatusAccepted, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
