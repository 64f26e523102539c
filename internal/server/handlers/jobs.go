package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/ticketops/internal/errors"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
)

// JobsHandler serves the job lifecycle endpoints.
type JobsHandler struct {
	Store    *jobstore.Store
	Queue    queue.Queue
	Registry *ops.Registry
	Log      *zap.Logger
}

// jobView is the API representation of a job row.
type jobView struct {
	ID             int64          `json:"id"`
	QueueID        string         `json:"queue_id"`
	Slug           string         `json:"slug"`
	Status         string         `json:"status"`
	Progress       int            `json:"progress"`
	TotalItems     int            `json:"total_items"`
	ProcessedItems int            `json:"processed_items"`
	Owner          string         `json:"owner,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Elapsed        string         `json:"elapsed"`
	Result         map[string]any `json:"result,omitempty"`
}

func viewOf(j *jobstore.Job, includeResult bool) jobView {
	v := jobView{
		ID:             j.ID,
		QueueID:        j.QueueID,
		Slug:           j.Slug,
		Status:         string(j.Status),
		Progress:       j.Progress,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		Owner:          j.Owner,
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		Elapsed:        j.Elapsed(time.Now()),
	}
	if includeResult {
		if payload, ok := j.Result(); ok {
			v.Result = payload
		}
	}
	return v
}

// List serves GET /v1/jobs with optional status, slug, owner, and limit
// filters.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := jobstore.Filter{
		Status: jobstore.Status(q.Get("status")),
		Slug:   q.Get("slug"),
		Owner:  q.Get("owner"),
	}
	if f.Status != "" && !f.Status.Valid() {
		badRequest(w, fmt.Sprintf("invalid status filter %q", f.Status))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		f.Limit = n
	}

	jobs, err := h.Store.List(r.Context(), f)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, viewOf(&jobs[i], false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// Get serves GET /v1/jobs/{id}: the full snapshot including the result
// payload, suitable for progress polling.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job, true))
}

// Cancel serves POST /v1/jobs/{id}/cancel: revokes the queued task and
// marks the row cancelled. Terminal rows answer 409.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromPath(w, r)
	if !ok {
		return
	}

	// Revocation is cooperative: a pending task is skipped, a running one
	// stops between items. A worker that already finished is fine.
	if h.Queue != nil {
		if err := h.Queue.Revoke(job.QueueID); err != nil && !errors.Is(err, queue.ErrUnknownID) {
			h.logger().Warn("revoke queued task", zap.String("queue_id", job.QueueID), zap.Error(err))
		}
	}

	if err := h.Store.Cancel(r.Context(), job.ID); err != nil {
		respondWithError(w, r, err)
		return
	}

	job, err := h.Store.Get(r.Context(), job.ID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job, false))
}

// Delete serves DELETE /v1/jobs/{id}. Only terminal rows can be deleted.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromPath(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), job.ID); err != nil {
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export serves GET /v1/jobs/{id}/export?format=csv|json: renders the
// stored result through the operation's exporter.
func (h *JobsHandler) Export(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobFromPath(w, r)
	if !ok {
		return
	}

	if job.Status != jobstore.StatusCompleted {
		respondWithError(w, r, &jobstore.StateError{ID: job.ID, Status: job.Status, Op: "export"})
		return
	}

	payload, ok := job.Result()
	if !ok {
		badRequest(w, "job has no result payload")
		return
	}

	op := h.Registry.Get(job.Slug)
	if op == nil {
		badRequest(w, fmt.Sprintf("operation %q is no longer registered", job.Slug))
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	result := resultFromPayload(payload)
	data, mime, filename, err := op.Export(result, format)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// resultFromPayload rebuilds the operation result from the stored JSON
// payload written by Complete.
func resultFromPayload(payload map[string]any) *ops.Result {
	res := &ops.Result{}
	if v, ok := payload["success"].(bool); ok {
		res.Success = v
	}
	if v, ok := payload["message"].(string); ok {
		res.Message = v
	}
	if v, ok := payload["data"].(map[string]any); ok {
		res.Data = v
	}
	return res
}

func (h *JobsHandler) jobFromPath(w http.ResponseWriter, r *http.Request) (*jobstore.Job, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(w, fmt.Sprintf("invalid job id %q", raw))
		return nil, false
	}
	job, err := h.Store.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, r, err)
		return nil, false
	}
	return job, true
}

func (h *JobsHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func badRequest(w http.ResponseWriter, msg string) {
	apperrors.WriteHTTPError(w, http.StatusBadRequest, apperrors.NewHTTPErrorResponse("VALIDATION_ERROR", msg))
}
