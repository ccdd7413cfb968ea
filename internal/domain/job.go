package domain

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCancelled = "CANCELLED"
	JobStatusRetry     = "RETRY"
)

// JobStatuses lists every job status in a fixed order.
var JobStatuses = []string{
	JobStatusPending,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusRetry,
}

// ClaimableStatuses are the job statuses a worker may claim from.
// RETRY is claimable: a retryable failure is written straight back to RETRY
// and picked up again on a later poll tick.
var ClaimableStatuses = []string{JobStatusPending, JobStatusQueued, JobStatusRetry}

// TerminalStatuses never transition again.
var TerminalStatuses = []string{JobStatusCompleted, JobStatusCancelled}

// Job is a durable unit of work tracked through the state machine.
// It is created by a submitter, mutated only by the worker, and never
// deleted by this core.
type Job struct {
	JobID         string          `db:"job_id" json:"job_id"`
	JobType       string          `db:"job_type" json:"job_type"`
	Status        string          `db:"status" json:"status"`
	Priority      int             `db:"priority" json:"priority"`
	InputData     json.RawMessage `db:"input_data" json:"input_data,omitempty"`
	OutputData    json.RawMessage `db:"output_data" json:"output_data,omitempty"`
	Attempts      int             `db:"attempts" json:"attempts"`
	MaxAttempts   int             `db:"max_attempts" json:"max_attempts"`
	FailureReason string          `db:"failure_reason" json:"failure_reason,omitempty"`
	UserID        string          `db:"user_id" json:"user_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	StartedAt     *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt      *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
}

// IsTerminal reports whether the job can never transition again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// JobLog is an append-only log entry belonging to a job. Written by the
// worker and handlers, never mutated.
type JobLog struct {
	LogID     string          `db:"log_id" json:"log_id"`
	JobID     string          `db:"job_id" json:"job_id"`
	Action    string          `db:"action" json:"action"`
	Message   string          `db:"message" json:"message"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
