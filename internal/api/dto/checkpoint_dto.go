package dto

import "github.com/cuongbtq/agent-core/internal/domain"

type ListCheckpointsRequest struct {
	Type     string `form:"type"`
	PageSize int    `form:"page_size"`
	Offset   int    `form:"offset"`
}

type ListCheckpointsResponse struct {
	Checkpoints []domain.Checkpoint `json:"checkpoints"`
}

type CheckpointDetailResponse struct {
	Checkpoint *domain.Checkpoint `json:"checkpoint"`
	Job        *domain.Job        `json:"job"`
}

type ApproveCheckpointRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
}

type RejectCheckpointRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}
