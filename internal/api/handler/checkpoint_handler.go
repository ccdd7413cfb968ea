package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/agent-core/internal/api/dto"
	"github.com/cuongbtq/agent-core/internal/domain"
)

// ListCheckpoints handles GET /api/v1/checkpoints
// Lists PENDING checkpoints awaiting review, optionally filtered by type
func (h *CheckpointHandler) ListCheckpoints(c *gin.Context) {
	var req dto.ListCheckpointsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Type != "" && req.Type != domain.CheckpointTypeInfo && req.Type != domain.CheckpointTypeApprovalRequired {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "type must be INFO or APPROVAL_REQUIRED",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	checkpoints, err := h.checkpoints.ListPending(c.Request.Context(), req.Type, req.PageSize, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list checkpoints", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list checkpoints",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ListCheckpointsResponse{
		Checkpoints: checkpoints,
	})
}

// GetCheckpoint handles GET /api/v1/checkpoints/:checkpoint_id
// Returns a checkpoint together with its parent job
func (h *CheckpointHandler) GetCheckpoint(c *gin.Context) {
	checkpointID := c.Param("checkpoint_id")

	if _, err := uuid.Parse(checkpointID); err != nil {
		h.logger.Error("Invalid checkpoint_id format", slog.String("checkpoint_id", checkpointID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "checkpoint_id must be a valid UUID",
		})
		return
	}

	cp, err := h.checkpoints.Get(c.Request.Context(), checkpointID)
	if err != nil {
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Checkpoint not found",
			})
			return
		}
		h.logger.Error("Failed to get checkpoint", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get checkpoint",
		})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), cp.JobID)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		h.logger.Error("Failed to get checkpoint job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get checkpoint",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CheckpointDetailResponse{
		Checkpoint: cp,
		Job:        job,
	})
}

// ApproveCheckpoint handles POST /api/v1/checkpoints/:checkpoint_id/approve
func (h *CheckpointHandler) ApproveCheckpoint(c *gin.Context) {
	checkpointID := c.Param("checkpoint_id")

	if _, err := uuid.Parse(checkpointID); err != nil {
		h.logger.Error("Invalid checkpoint_id format", slog.String("checkpoint_id", checkpointID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "checkpoint_id must be a valid UUID",
		})
		return
	}

	var req dto.ApproveCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	cp, err := h.checkpoints.Approve(c.Request.Context(), checkpointID, req.ApproverID)
	if err != nil {
		h.respondResolveError(c, checkpointID, err)
		return
	}

	c.JSON(http.StatusOK, cp)
}

// RejectCheckpoint handles POST /api/v1/checkpoints/:checkpoint_id/reject
func (h *CheckpointHandler) RejectCheckpoint(c *gin.Context) {
	checkpointID := c.Param("checkpoint_id")

	if _, err := uuid.Parse(checkpointID); err != nil {
		h.logger.Error("Invalid checkpoint_id format", slog.String("checkpoint_id", checkpointID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "checkpoint_id must be a valid UUID",
		})
		return
	}

	var req dto.RejectCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	cp, err := h.checkpoints.Reject(c.Request.Context(), checkpointID, req.ApproverID, req.Reason)
	if err != nil {
		h.respondResolveError(c, checkpointID, err)
		return
	}

	c.JSON(http.StatusOK, cp)
}

func (h *CheckpointHandler) respondResolveError(c *gin.Context, checkpointID string, err error) {
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Checkpoint not found",
		})
	case errors.Is(err, domain.ErrCheckpointNotPending):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Checkpoint already resolved or expired",
		})
	default:
		h.logger.Error("Failed to resolve checkpoint",
			slog.String("checkpoint_id", checkpointID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to resolve checkpoint",
		})
	}
}
