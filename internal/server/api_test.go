package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/dispatch"
	apperrors "github.com/3leaps/ticketops/internal/errors"
	"github.com/3leaps/ticketops/internal/tools"
	"github.com/3leaps/ticketops/pkg/batch"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
	"github.com/3leaps/ticketops/pkg/ticketapi"
)

type apiFixture struct {
	srv   *Server
	store *jobstore.Store
	queue *queue.InProc
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	client := ticketapi.NewMemory()
	client.AddTicket(ticketapi.Ticket{ID: 1, Subject: "First", Status: "open", Tags: []string{"a"}})
	client.AddTicket(ticketapi.Ticket{ID: 2, Subject: "Second", Status: "open", Tags: []string{"b"}})
	client.AddView(ticketapi.View{ID: 10, Title: "Inbox"}, 1, 2)
	client.AddMacro(ticketapi.Macro{ID: 100, Title: "Close", Active: true})

	db, err := jobstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, jobstore.Migrate(context.Background(), db))
	store := jobstore.NewStore(db)

	q := queue.NewInProc(1, 8, zap.NewNop())
	t.Cleanup(q.Close)

	reg := ops.NewRegistry()
	require.NoError(t, tools.RegisterAll(reg, tools.Deps{
		Client: client,
		Jobs:   store,
		Queue:  q,
		Exec:   batch.New(0, time.Millisecond),
		Log:    zap.NewNop(),
	}))

	srv := New("127.0.0.1", 0, Deps{
		Store:      store,
		Queue:      q,
		Registry:   reg,
		Dispatcher: dispatch.New(reg, zap.NewNop()),
		Log:        zap.NewNop(),
	})
	return &apiFixture{srv: srv, store: store, queue: q}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAPI_ListOps(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/ops", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Operations []ops.Descriptor `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Operations, 4)

	slugs := make([]string, 0, len(body.Operations))
	for _, d := range body.Operations {
		slugs = append(slugs, d.Slug)
	}
	assert.Contains(t, slugs, "tag_add")
	assert.Contains(t, slugs, "macro_search")
}

func TestAPI_Fields(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/ops/tag_add/fields", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Slug   string          `json:"slug"`
		Fields []ops.FormField `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tag_add", body.Slug)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "view_id", body.Fields[0].Name)
	assert.NotEmpty(t, body.Fields[0].Options)
}

func TestAPI_FieldsUnknownSlug(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/ops/nope/fields", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestAPI_ExecuteInline(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/ops/tag_add/execute",
		`{"input":{"view_id":"10","tags":"urgent","ticket_limit":"500"},"owner":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out dispatch.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Async)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.Success)
}

func TestAPI_ExecuteValidationError(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/ops/tag_add/execute",
		`{"input":{"view_id":"10","tags":"","ticket_limit":"500"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
}

func TestAPI_ExecuteAsync(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/ops/tag_add/execute",
		`{"input":{"view_id":"10","tags":"urgent","ticket_limit":"10000"},"owner":"alice"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var out dispatch.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Async)
	require.NotNil(t, out.AsyncResult)
	require.True(t, out.AsyncResult.Success, out.AsyncResult.Message)

	jobPath := fmt.Sprintf("/v1/jobs/%d", out.AsyncResult.JobID)
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, jobPath, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var v struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
			return false
		}
		return v.Status == "completed"
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodGet, jobPath, "")
	var v struct {
		Progress int            `json:"progress"`
		Elapsed  string         `json:"elapsed"`
		Result   map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 100, v.Progress)
	assert.NotEmpty(t, v.Elapsed)
	assert.NotNil(t, v.Result)
}

func TestAPI_ExecuteAsyncQueueDown(t *testing.T) {
	f := newAPIFixture(t)
	f.queue.Close()

	rec := f.do(t, http.MethodPost, "/v1/ops/tag_add/execute",
		`{"input":{"view_id":"10","tags":"urgent","ticket_limit":"10000"},"owner":"alice"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "QUEUE_UNAVAILABLE", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "queue submission failed")

	// The row created before the rejected submission is already failed.
	jobID, ok := resp.Error.Details["job_id"].(float64)
	require.True(t, ok, "details carry the failed job id")
	job, err := f.store.Get(context.Background(), int64(jobID))
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, job.Status)
}

func TestAPI_JobsListAndFilters(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	j1, err := f.store.Create(ctx, "q-list-1", "tag_add", 5, "alice")
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "q-list-2", "macro_apply", 5, "bob")
	require.NoError(t, err)
	require.NoError(t, f.store.Fail(ctx, j1.ID, "boom"))

	rec := f.do(t, http.MethodGet, "/v1/jobs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, j1.ID, body.Jobs[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/jobs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_JobNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/jobs/9999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestAPI_CancelJob(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	job, err := f.store.Create(ctx, "q-cancel-1", "tag_add", 5, "alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/cancel", job.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var v struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "cancelled", v.Status)

	// Terminal rows reject another cancel.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/jobs/%d/cancel", job.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_DeleteJob(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	pending, err := f.store.Create(ctx, "q-del-1", "tag_add", 5, "alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/v1/jobs/%d", pending.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code, "non-terminal jobs cannot be deleted")

	done, err := f.store.Create(ctx, "q-del-2", "tag_add", 5, "alice")
	require.NoError(t, err)
	require.NoError(t, f.store.Complete(ctx, done.ID, map[string]any{"ok": true}))

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/jobs/%d", done.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/jobs/%d", done.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ExportJob(t *testing.T) {
	f := newAPIFixture(t)

	// Run a large tagging job to completion, then export it.
	rec := f.do(t, http.MethodPost, "/v1/ops/tag_add/execute",
		`{"input":{"view_id":"10","tags":"urgent","ticket_limit":"10000"},"owner":"alice"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var out dispatch.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	jobID := out.AsyncResult.JobID

	require.Eventually(t, func() bool {
		j, err := f.store.Get(context.Background(), jobID)
		return err == nil && j.Status == jobstore.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/jobs/%d/export?format=csv", jobID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tag_add_view_10.csv")
	assert.Contains(t, rec.Body.String(), "ticket_id,result,error")

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/v1/jobs/%d/export?format=xml", jobID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ExportIncompleteJobConflicts(t *testing.T) {
	f := newAPIFixture(t)

	job, err := f.store.Create(context.Background(), "q-exp-1", "tag_add", 5, "alice")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/v1/jobs/%d/export", job.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
