package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/agent-core/internal/api/dto"
	"github.com/cuongbtq/agent-core/internal/domain"
)

func (h *apiHarness) seedJobWithCheckpoint(t *testing.T) (string, string) {
	t.Helper()

	jobID := uuid.New().String()
	now := time.Now()
	require.NoError(t, h.store.CreateJob(context.Background(), &domain.Job{
		JobID:       jobID,
		JobType:     "code-generation",
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	cp, err := h.deps.Checkpoints.Create(context.Background(), jobID,
		domain.CheckpointTypeApprovalRequired, "Approve creation of 1 file(s)", nil, nil, nil)
	require.NoError(t, err)

	return jobID, cp.CheckpointID
}

func TestCheckpointHandler_ListCheckpoints(t *testing.T) {
	h := newAPIHarness(t)
	cpHandler := NewCheckpointHandler(h.deps)

	h.seedJobWithCheckpoint(t)
	h.seedJobWithCheckpoint(t)

	t.Run("lists pending", func(t *testing.T) {
		w := performJSON(t, cpHandler.ListCheckpoints, http.MethodGet, "/api/v1/checkpoints", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListCheckpointsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Checkpoints, 2)
	})

	t.Run("type filter", func(t *testing.T) {
		w := performJSON(t, cpHandler.ListCheckpoints, http.MethodGet, "/api/v1/checkpoints?type=INFO", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListCheckpointsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Checkpoints)
	})

	t.Run("invalid type", func(t *testing.T) {
		w := performJSON(t, cpHandler.ListCheckpoints, http.MethodGet, "/api/v1/checkpoints?type=NUDGE", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCheckpointHandler_GetCheckpoint(t *testing.T) {
	h := newAPIHarness(t)
	cpHandler := NewCheckpointHandler(h.deps)

	jobID, checkpointID := h.seedJobWithCheckpoint(t)

	t.Run("found with parent job", func(t *testing.T) {
		w := performJSON(t, cpHandler.GetCheckpoint, http.MethodGet, "/api/v1/checkpoints/"+checkpointID,
			gin.Params{{Key: "checkpoint_id", Value: checkpointID}}, nil)

		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.CheckpointDetailResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, checkpointID, resp.Checkpoint.CheckpointID)
		require.NotNil(t, resp.Job)
		assert.Equal(t, jobID, resp.Job.JobID)
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New().String()
		w := performJSON(t, cpHandler.GetCheckpoint, http.MethodGet, "/api/v1/checkpoints/"+missing,
			gin.Params{{Key: "checkpoint_id", Value: missing}}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCheckpointHandler_ApproveCheckpoint(t *testing.T) {
	h := newAPIHarness(t)
	cpHandler := NewCheckpointHandler(h.deps)

	_, checkpointID := h.seedJobWithCheckpoint(t)
	params := gin.Params{{Key: "checkpoint_id", Value: checkpointID}}

	t.Run("missing approver", func(t *testing.T) {
		w := performJSON(t, cpHandler.ApproveCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/approve", params, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("approves pending checkpoint", func(t *testing.T) {
		w := performJSON(t, cpHandler.ApproveCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/approve", params,
			dto.ApproveCheckpointRequest{ApproverID: "reviewer-1"})

		require.Equal(t, http.StatusOK, w.Code)

		var cp domain.Checkpoint
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
		assert.Equal(t, domain.CheckpointStatusApproved, cp.Status)
		assert.Equal(t, "reviewer-1", cp.ApprovedBy)
	})

	t.Run("second approve conflicts", func(t *testing.T) {
		w := performJSON(t, cpHandler.ApproveCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/approve", params,
			dto.ApproveCheckpointRequest{ApproverID: "reviewer-2"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCheckpointHandler_RejectCheckpoint(t *testing.T) {
	h := newAPIHarness(t)
	cpHandler := NewCheckpointHandler(h.deps)

	_, checkpointID := h.seedJobWithCheckpoint(t)
	params := gin.Params{{Key: "checkpoint_id", Value: checkpointID}}

	t.Run("missing reason", func(t *testing.T) {
		w := performJSON(t, cpHandler.RejectCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/reject", params,
			map[string]string{"approver_id": "reviewer-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects pending checkpoint", func(t *testing.T) {
		w := performJSON(t, cpHandler.RejectCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/reject", params,
			dto.RejectCheckpointRequest{ApproverID: "reviewer-1", Reason: "touches prod"})

		require.Equal(t, http.StatusOK, w.Code)

		var cp domain.Checkpoint
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
		assert.Equal(t, domain.CheckpointStatusRejected, cp.Status)
		assert.Equal(t, "touches prod", cp.RejectionReason)
	})

	t.Run("reject after reject conflicts", func(t *testing.T) {
		w := performJSON(t, cpHandler.RejectCheckpoint, http.MethodPost,
			"/api/v1/checkpoints/"+checkpointID+"/reject", params,
			dto.RejectCheckpointRequest{ApproverID: "reviewer-2", Reason: "still no"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestTaskHandler(t *testing.T) {
	h := newAPIHarness(t)
	taskHandler := NewTaskHandler(h.deps)

	t.Run("submit and poll", func(t *testing.T) {
		w := performJSON(t, taskHandler.SubmitTask, http.MethodPost, "/api/v1/tasks",
			nil, dto.SubmitTaskRequest{Task: "research something", SubmitterID: "user-1"})

		require.Equal(t, http.StatusAccepted, w.Code)

		var submitted dto.SubmitTaskResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
		require.NotEmpty(t, submitted.TaskID)

		require.Eventually(t, func() bool {
			w := performJSON(t, taskHandler.GetTask, http.MethodGet, "/api/v1/tasks/"+submitted.TaskID,
				gin.Params{{Key: "task_id", Value: submitted.TaskID}}, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var status dto.TaskStatusResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
			return status.Status == domain.TaskStatusCompleted && status.Result != nil
		}, 10*time.Second, 20*time.Millisecond)
	})

	t.Run("missing task text", func(t *testing.T) {
		w := performJSON(t, taskHandler.SubmitTask, http.MethodPost, "/api/v1/tasks",
			nil, map[string]string{"context": "no task"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown task id", func(t *testing.T) {
		missing := uuid.New().String()
		w := performJSON(t, taskHandler.GetTask, http.MethodGet, "/api/v1/tasks/"+missing,
			gin.Params{{Key: "task_id", Value: missing}}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
