package dto

import "github.com/cuongbtq/agent-core/internal/domain"

type SubmitTaskRequest struct {
	Task        string `json:"task" binding:"required"`
	Context     string `json:"context"`
	SubmitterID string `json:"submitter_id"`
	Priority    int    `json:"priority"`
}

type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type TaskStatusResponse struct {
	TaskID string             `json:"task_id"`
	Status string             `json:"status"`
	Result *domain.TaskResult `json:"result,omitempty"`
}
