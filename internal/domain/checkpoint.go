package domain

import (
	"encoding/json"
	"time"
)

// Checkpoint type constants
const (
	CheckpointTypeInfo             = "INFO"
	CheckpointTypeApprovalRequired = "APPROVAL_REQUIRED"
)

// Checkpoint status constants
const (
	CheckpointStatusPending  = "PENDING"
	CheckpointStatusApproved = "APPROVED"
	CheckpointStatusRejected = "REJECTED"
	CheckpointStatusExpired  = "EXPIRED"
)

// DefaultCheckpointTTL is applied when a checkpoint is created without an
// explicit expiry.
const DefaultCheckpointTTL = 24 * time.Hour

// Checkpoint is a point in a job's execution requiring either human approval
// (APPROVAL_REQUIRED) or pure audit visibility (INFO). A checkpoint belongs
// to exactly one job.
type Checkpoint struct {
	CheckpointID    string          `db:"checkpoint_id" json:"checkpoint_id"`
	JobID           string          `db:"job_id" json:"job_id"`
	CheckpointType  string          `db:"checkpoint_type" json:"checkpoint_type"`
	Status          string          `db:"status" json:"status"`
	Message         string          `db:"message" json:"message"`
	Data            json.RawMessage `db:"data" json:"data,omitempty"`
	Metadata        json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	ApprovedBy      string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the checkpoint's expiry has passed at the given
// instant. A nil expiry never expires.
func (c *Checkpoint) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Blocks reports whether the checkpoint gates job progress at the given
// instant: approval-required, still pending, and not expired.
func (c *Checkpoint) Blocks(now time.Time) bool {
	return c.CheckpointType == CheckpointTypeApprovalRequired &&
		c.Status == CheckpointStatusPending &&
		!c.IsExpired(now)
}
