// Package store is the single source of truth for jobs, checkpoints and job
// logs. Status mutations use conditional updates so that concurrent worker
// processes cannot double-claim a job or double-resolve a checkpoint.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
)

// JobFilter narrows down job listing
type JobFilter struct {
	UserID   string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is an opaque pagination position (created_at, job_id)
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store is the transactional persistence boundary for the execution core.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	// NextClaimableJob returns the highest-priority, oldest job in a
	// claimable status, or domain.ErrJobNotFound when the queue is empty.
	NextClaimableJob(ctx context.Context) (*domain.Job, error)
	// ClaimJob transitions the job to RUNNING and increments attempts in a
	// single conditional update. Returns domain.ErrJobNotClaimable if the
	// job left a claimable status in the meantime.
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string, output json.RawMessage) error
	// FailJob records the failure reason; retry selects RETRY over FAILED.
	FailJob(ctx context.Context, jobID string, reason string, retry bool) error
	// CancelJob cancels a job that has not started yet.
	CancelJob(ctx context.Context, jobID string) error

	// Checkpoints
	CreateCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
	GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error)
	ListCheckpointsByJob(ctx context.Context, jobID string) ([]domain.Checkpoint, error)
	ListPendingCheckpoints(ctx context.Context, checkpointType string, limit, offset int) ([]domain.Checkpoint, error)
	ApproveCheckpoint(ctx context.Context, checkpointID, approverID string) (*domain.Checkpoint, error)
	RejectCheckpoint(ctx context.Context, checkpointID, approverID, reason string) (*domain.Checkpoint, error)
	// ExpireCheckpoint flips a still-PENDING checkpoint to EXPIRED; reports
	// whether the flip happened.
	ExpireCheckpoint(ctx context.Context, checkpointID string) (bool, error)
	// ExpirePendingCheckpoints expires every PENDING checkpoint whose expiry
	// passed before now and returns how many were flipped.
	ExpirePendingCheckpoints(ctx context.Context, now time.Time) (int64, error)
	// LatestBlockingCheckpoint returns the most recently created PENDING
	// approval-required, non-expired checkpoint of the job, or
	// domain.ErrCheckpointNotFound.
	LatestBlockingCheckpoint(ctx context.Context, jobID string, now time.Time) (*domain.Checkpoint, error)

	// Logs
	AppendJobLog(ctx context.Context, entry *domain.JobLog) error
	ListJobLogs(ctx context.Context, jobID string, limit int) ([]domain.JobLog, error)

	// Aggregates for the metrics exporter
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	CountPendingCheckpoints(ctx context.Context) (int, error)
}
