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

// SubmitTask handles POST /api/v1/tasks
// Hands a free-form task to the orchestrator and returns immediately
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	taskID, err := h.orchestrator.SubmitTask(req.Task, req.Context, req.SubmitterID, req.Priority)
	if err != nil {
		h.logger.Error("Failed to submit task", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("Task submitted", slog.String("task_id", taskID))

	c.JSON(http.StatusAccepted, dto.SubmitTaskResponse{
		TaskID: taskID,
		Status: domain.TaskStatusPending,
	})
}

// GetTask handles GET /api/v1/tasks/:task_id
// Reports the task status and, once finished, its aggregated result
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")

	if _, err := uuid.Parse(taskID); err != nil {
		h.logger.Error("Invalid task_id format", slog.String("task_id", taskID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_id must be a valid UUID",
		})
		return
	}

	status, result, err := h.orchestrator.Status(taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}
		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	c.JSON(http.StatusOK, dto.TaskStatusResponse{
		TaskID: taskID,
		Status: status,
		Result: result,
	})
}
