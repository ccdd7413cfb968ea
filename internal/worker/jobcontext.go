package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/store"
)

// JobContext is the execution context handed to a handler. It exposes the
// job's input read-only plus the logging and checkpoint primitives. A new
// context is built per invocation, so a retried job re-creates its
// checkpoints and re-requests approval.
type JobContext struct {
	job         *domain.Job
	store       store.Store
	checkpoints *checkpoint.Manager
	logger      *slog.Logger

	waitPollInterval time.Duration
	waitTimeout      time.Duration

	lastCheckpointID string
}

// JobID returns the id of the job being executed.
func (jc *JobContext) JobID() string {
	return jc.job.JobID
}

// JobType returns the type of the job being executed.
func (jc *JobContext) JobType() string {
	return jc.job.JobType
}

// Attempt returns the current attempt number, starting at 1.
func (jc *JobContext) Attempt() int {
	return jc.job.Attempts
}

// Input returns the job's input payload.
func (jc *JobContext) Input() json.RawMessage {
	return jc.job.InputData
}

// BindInput unmarshals the input payload into v.
func (jc *JobContext) BindInput(v interface{}) error {
	if len(jc.job.InputData) == 0 {
		return fmt.Errorf("job has no input data")
	}
	if err := json.Unmarshal(jc.job.InputData, v); err != nil {
		return fmt.Errorf("failed to parse job input: %w", err)
	}
	return nil
}

// CreateLog appends an entry to the job's append-only log.
func (jc *JobContext) CreateLog(ctx context.Context, action, message string, metadata json.RawMessage) error {
	entry := &domain.JobLog{
		LogID:     uuid.New().String(),
		JobID:     jc.job.JobID,
		Action:    action,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	if err := jc.store.AppendJobLog(ctx, entry); err != nil {
		return err
	}

	jc.logger.Debug("Job log appended",
		slog.String("job_id", jc.job.JobID),
		slog.String("action", action),
	)

	return nil
}

// CreateCheckpoint creates a new checkpoint for the job and returns its id.
// Every call creates a fresh checkpoint, also on retries.
func (jc *JobContext) CreateCheckpoint(ctx context.Context, checkpointType, message string, data, metadata json.RawMessage) (string, error) {
	cp, err := jc.checkpoints.Create(ctx, jc.job.JobID, checkpointType, message, data, metadata, nil)
	if err != nil {
		return "", err
	}

	jc.lastCheckpointID = cp.CheckpointID
	return cp.CheckpointID, nil
}

// WaitForCheckpoint blocks until the checkpoint is resolved. It returns true
// when approved and false when rejected or expired. The wait re-polls the
// checkpoint every waitPollInterval and gives up after waitTimeout, at which
// point the checkpoint is force-expired. The handler occupies its
// concurrency slot for the entire wait.
func (jc *JobContext) WaitForCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	jc.logger.Info("Waiting for checkpoint resolution",
		slog.String("job_id", jc.job.JobID),
		slog.String("checkpoint_id", checkpointID),
		slog.Duration("poll_interval", jc.waitPollInterval),
	)

	deadline := time.Now().Add(jc.waitTimeout)
	ticker := time.NewTicker(jc.waitPollInterval)
	defer ticker.Stop()

	for {
		approved, resolved, err := jc.checkCheckpoint(ctx, checkpointID)
		if err != nil {
			return false, err
		}
		if resolved {
			return approved, nil
		}

		if time.Now().After(deadline) {
			jc.logger.Warn("Checkpoint wait ceiling reached, force-expiring",
				slog.String("job_id", jc.job.JobID),
				slog.String("checkpoint_id", checkpointID),
			)
			if err := jc.checkpoints.ForceExpire(ctx, checkpointID); err != nil {
				return false, err
			}
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, fmt.Errorf("checkpoint wait interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkCheckpoint reads the checkpoint once and reports (approved, resolved).
// A pending-but-expired checkpoint is flipped to EXPIRED via the manager's
// lazy expiry.
func (jc *JobContext) checkCheckpoint(ctx context.Context, checkpointID string) (bool, bool, error) {
	cp, err := jc.checkpoints.Get(ctx, checkpointID)
	if err != nil {
		return false, false, err
	}

	switch cp.Status {
	case domain.CheckpointStatusApproved:
		return true, true, nil
	case domain.CheckpointStatusRejected, domain.CheckpointStatusExpired:
		return false, true, nil
	}

	blocking, err := jc.checkpoints.IsBlocking(ctx, checkpointID)
	if err != nil {
		return false, false, err
	}
	if !blocking {
		// Lazy expiry flipped it just now.
		return false, true, nil
	}

	return false, false, nil
}

// Checkpoint returns the current state of a checkpoint of this job.
func (jc *JobContext) Checkpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	return jc.checkpoints.Get(ctx, checkpointID)
}

// LastCheckpointID returns the most recently created checkpoint id of this
// invocation, or empty. Used to tag handler errors.
func (jc *JobContext) LastCheckpointID() string {
	return jc.lastCheckpointID
}
