package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/agent-core/internal/api/dto"
	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/events"
	"github.com/cuongbtq/agent-core/internal/llm"
	"github.com/cuongbtq/agent-core/internal/orchestrator"
	"github.com/cuongbtq/agent-core/internal/report"
	"github.com/cuongbtq/agent-core/internal/store/storetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiHarness struct {
	deps  *Dependencies
	store *storetest.Memory
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	mem := storetest.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reporter, err := report.New(&report.Config{}, logger)
	require.NoError(t, err)

	checkpoints := checkpoint.NewManager(mem, logger, reporter, events.Noop{}, &checkpoint.Config{})
	orch := orchestrator.New(llm.NewClient(&llm.Config{}), logger, &orchestrator.Config{})

	return &apiHarness{
		deps: &Dependencies{
			Logger:             logger,
			Store:              mem,
			Checkpoints:        checkpoints,
			Orchestrator:       orch,
			DefaultMaxAttempts: 3,
			JobTypes:           []string{"simple-task", "code-generation", "report-generation"},
		},
		store: mem,
	}
}

func performJSON(t *testing.T, handler gin.HandlerFunc, method, path string, params gin.Params, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params

	handler(c)
	return w
}

func TestJobHandler_CreateJob(t *testing.T) {
	h := newAPIHarness(t)
	jobHandler := NewJobHandler(h.deps)

	t.Run("creates pending job with defaults", func(t *testing.T) {
		w := performJSON(t, jobHandler.CreateJob, http.MethodPost, "/api/v1/jobs", nil, dto.CreateJobRequest{
			JobType:   "simple-task",
			InputData: json.RawMessage(`{"payload":"hi"}`),
			UserID:    "user-1",
		})

		require.Equal(t, http.StatusCreated, w.Code)

		var resp dto.CreateJobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, domain.JobStatusPending, resp.Status)

		job, err := h.store.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, "simple-task", job.JobType)
		assert.Equal(t, 3, job.MaxAttempts)
		assert.Equal(t, "user-1", job.UserID)
	})

	t.Run("missing job_type", func(t *testing.T) {
		w := performJSON(t, jobHandler.CreateJob, http.MethodPost, "/api/v1/jobs", nil, map[string]interface{}{
			"input_data": map[string]string{"payload": "hi"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown job_type", func(t *testing.T) {
		w := performJSON(t, jobHandler.CreateJob, http.MethodPost, "/api/v1/jobs", nil, dto.CreateJobRequest{
			JobType: "mystery-task",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown job_type")
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	h := newAPIHarness(t)
	jobHandler := NewJobHandler(h.deps)

	jobID := uuid.New().String()
	now := time.Now()
	require.NoError(t, h.store.CreateJob(context.Background(), &domain.Job{
		JobID:       jobID,
		JobType:     "simple-task",
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	require.NoError(t, h.store.AppendJobLog(context.Background(), &domain.JobLog{
		LogID:     uuid.New().String(),
		JobID:     jobID,
		Action:    "thinking",
		Message:   "starting",
		CreatedAt: now,
	}))

	t.Run("found with logs", func(t *testing.T) {
		w := performJSON(t, jobHandler.GetJob, http.MethodGet, "/api/v1/jobs/"+jobID,
			gin.Params{{Key: "job_id", Value: jobID}}, nil)

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.JobDetailResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, jobID, resp.Job.JobID)
		require.Len(t, resp.Logs, 1)
		assert.Equal(t, "thinking", resp.Logs[0].Action)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		w := performJSON(t, jobHandler.GetJob, http.MethodGet, "/api/v1/jobs/abc",
			gin.Params{{Key: "job_id", Value: "abc"}}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New().String()
		w := performJSON(t, jobHandler.GetJob, http.MethodGet, "/api/v1/jobs/"+missing,
			gin.Params{{Key: "job_id", Value: missing}}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestJobHandler_ListJobs(t *testing.T) {
	h := newAPIHarness(t)
	jobHandler := NewJobHandler(h.deps)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, h.store.CreateJob(context.Background(), &domain.Job{
			JobID:       uuid.New().String(),
			JobType:     "simple-task",
			Status:      domain.JobStatusPending,
			MaxAttempts: 3,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}))
	}

	w := performJSON(t, jobHandler.ListJobs, http.MethodGet, "/api/v1/jobs?page_size=3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var first dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Len(t, first.Jobs, 3)
	require.NotEmpty(t, first.NextCursor)

	w = performJSON(t, jobHandler.ListJobs, http.MethodGet, "/api/v1/jobs?page_size=3&cursor="+first.NextCursor, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var second dto.ListJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Len(t, second.Jobs, 2)
	assert.Empty(t, second.NextCursor)

	// Newest first across both pages, no overlap.
	seen := map[string]bool{}
	var all []domain.Job
	all = append(all, first.Jobs...)
	all = append(all, second.Jobs...)
	for i, job := range all {
		assert.False(t, seen[job.JobID])
		seen[job.JobID] = true
		if i > 0 {
			assert.False(t, job.CreatedAt.After(all[i-1].CreatedAt))
		}
	}
}

func TestJobHandler_CancelJob(t *testing.T) {
	h := newAPIHarness(t)
	jobHandler := NewJobHandler(h.deps)

	pendingID := uuid.New().String()
	runningID := uuid.New().String()
	now := time.Now()

	require.NoError(t, h.store.CreateJob(context.Background(), &domain.Job{
		JobID: pendingID, JobType: "simple-task", Status: domain.JobStatusPending,
		MaxAttempts: 3, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, h.store.CreateJob(context.Background(), &domain.Job{
		JobID: runningID, JobType: "simple-task", Status: domain.JobStatusRunning,
		MaxAttempts: 3, CreatedAt: now, UpdatedAt: now,
	}))

	t.Run("cancels pending job", func(t *testing.T) {
		w := performJSON(t, jobHandler.CancelJob, http.MethodPost, "/api/v1/jobs/"+pendingID+"/cancel",
			gin.Params{{Key: "job_id", Value: pendingID}}, nil)

		require.Equal(t, http.StatusOK, w.Code)

		job, err := h.store.GetJob(context.Background(), pendingID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
	})

	t.Run("running job conflicts", func(t *testing.T) {
		w := performJSON(t, jobHandler.CancelJob, http.MethodPost, "/api/v1/jobs/"+runningID+"/cancel",
			gin.Params{{Key: "job_id", Value: runningID}}, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		missing := uuid.New().String()
		w := performJSON(t, jobHandler.CancelJob, http.MethodPost, "/api/v1/jobs/"+missing+"/cancel",
			gin.Params{{Key: "job_id", Value: missing}}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
