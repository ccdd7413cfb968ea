package dto

import (
	"encoding/json"

	"github.com/cuongbtq/agent-core/internal/domain"
)

type CreateJobRequest struct {
	JobType     string          `json:"job_type" binding:"required"`
	InputData   json.RawMessage `json:"input_data"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
	UserID      string          `json:"user_id"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type JobDetailResponse struct {
	Job         *domain.Job         `json:"job"`
	Checkpoints []domain.Checkpoint `json:"checkpoints"`
	Logs        []domain.JobLog     `json:"logs"`
}
