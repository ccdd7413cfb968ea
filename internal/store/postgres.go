package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Postgres implements Store on top of PostgreSQL via sqlx.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres store backed by the shared client.
func NewPostgres(pg *postgresql.Client, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     pg.GetDB(),
		logger: logger,
	}
}

const jobColumns = `
	job_id, job_type, status, priority, input_data, output_data,
	attempts, max_attempts, failure_reason, user_id,
	created_at, updated_at, started_at, completed_at, failed_at
`

func (s *Postgres) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_type, status, priority, input_data,
			attempts, max_attempts, user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.JobType,
		job.Status,
		job.Priority,
		nullableJSON(job.InputData),
		job.Attempts,
		job.MaxAttempts,
		job.UserID,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Postgres) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (s *Postgres) NextClaimableJob(ctx context.Context) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN (` + statusPlaceholders(1) + `)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, claimableArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to query claimable job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempts = attempts + 1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN (` + statusPlaceholders(3) + `)
		RETURNING ` + jobColumns

	args := append([]interface{}{domain.JobStatusRunning, jobID}, claimableArgs()...)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - no longer claimable",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobNotClaimable
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) CompleteJob(ctx context.Context, jobID string, output json.RawMessage) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    output_data = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, nullableJSON(output), jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

func (s *Postgres) FailJob(ctx context.Context, jobID string, reason string, retry bool) error {
	status := domain.JobStatusFailed
	if retry {
		status = domain.JobStatusRetry
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    failure_reason = $2,
		    failed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, status, reason, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

func (s *Postgres) CancelJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN (` + statusPlaceholders(3) + `)
	`

	args := append([]interface{}{domain.JobStatusCancelled, jobID}, claimableArgs()...)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrJobNotCancellable
	}

	return nil
}

const checkpointColumns = `
	checkpoint_id, job_id, checkpoint_type, status, message, data, metadata,
	expires_at, approved_by, approved_at, rejection_reason, created_at
`

func (s *Postgres) CreateCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (
			checkpoint_id, job_id, checkpoint_type, status, message,
			data, metadata, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		cp.CheckpointID,
		cp.JobID,
		cp.CheckpointType,
		cp.Status,
		cp.Message,
		nullableJSON(cp.Data),
		nullableJSON(cp.Metadata),
		cp.ExpiresAt,
		cp.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	return nil
}

func (s *Postgres) GetCheckpoint(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM checkpoints WHERE checkpoint_id = $1`

	var cp domain.Checkpoint
	if err := s.db.GetContext(ctx, &cp, query, checkpointID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

func (s *Postgres) ListCheckpointsByJob(ctx context.Context, jobID string) ([]domain.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM checkpoints
		WHERE job_id = $1
		ORDER BY created_at ASC
	`

	var checkpoints []domain.Checkpoint
	if err := s.db.SelectContext(ctx, &checkpoints, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	return checkpoints, nil
}

func (s *Postgres) ListPendingCheckpoints(ctx context.Context, checkpointType string, limit, offset int) ([]domain.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM checkpoints
		WHERE status = $1
	`
	args := []interface{}{domain.CheckpointStatusPending}
	argIdx := 2

	if checkpointType != "" {
		query += fmt.Sprintf(" AND checkpoint_type = $%d", argIdx)
		args = append(args, checkpointType)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	var checkpoints []domain.Checkpoint
	if err := s.db.SelectContext(ctx, &checkpoints, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pending checkpoints: %w", err)
	}

	return checkpoints, nil
}

func (s *Postgres) ApproveCheckpoint(ctx context.Context, checkpointID, approverID string) (*domain.Checkpoint, error) {
	query := `
		UPDATE checkpoints
		SET status = $1,
		    approved_by = $2,
		    approved_at = NOW()
		WHERE checkpoint_id = $3
		  AND status = $4
		RETURNING ` + checkpointColumns

	var cp domain.Checkpoint
	err := s.db.GetContext(ctx, &cp, query, domain.CheckpointStatusApproved, approverID, checkpointID, domain.CheckpointStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.checkpointTransitionErr(ctx, checkpointID)
		}
		return nil, fmt.Errorf("failed to approve checkpoint: %w", err)
	}

	return &cp, nil
}

func (s *Postgres) RejectCheckpoint(ctx context.Context, checkpointID, approverID, reason string) (*domain.Checkpoint, error) {
	query := `
		UPDATE checkpoints
		SET status = $1,
		    approved_by = $2,
		    approved_at = NOW(),
		    rejection_reason = $3
		WHERE checkpoint_id = $4
		  AND status = $5
		RETURNING ` + checkpointColumns

	var cp domain.Checkpoint
	err := s.db.GetContext(ctx, &cp, query, domain.CheckpointStatusRejected, approverID, reason, checkpointID, domain.CheckpointStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.checkpointTransitionErr(ctx, checkpointID)
		}
		return nil, fmt.Errorf("failed to reject checkpoint: %w", err)
	}

	return &cp, nil
}

// checkpointTransitionErr distinguishes "not found" from "already terminal"
// after a conditional update matched no row.
func (s *Postgres) checkpointTransitionErr(ctx context.Context, checkpointID string) error {
	if _, err := s.GetCheckpoint(ctx, checkpointID); err != nil {
		return err
	}
	return domain.ErrCheckpointNotPending
}

func (s *Postgres) ExpireCheckpoint(ctx context.Context, checkpointID string) (bool, error) {
	query := `
		UPDATE checkpoints
		SET status = $1
		WHERE checkpoint_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.CheckpointStatusExpired, checkpointID, domain.CheckpointStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to expire checkpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

func (s *Postgres) ExpirePendingCheckpoints(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE checkpoints
		SET status = $1
		WHERE status = $2
		  AND expires_at IS NOT NULL
		  AND expires_at < $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.CheckpointStatusExpired, domain.CheckpointStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending checkpoints: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

func (s *Postgres) LatestBlockingCheckpoint(ctx context.Context, jobID string, now time.Time) (*domain.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM checkpoints
		WHERE job_id = $1
		  AND checkpoint_type = $2
		  AND status = $3
		  AND (expires_at IS NULL OR expires_at >= $4)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var cp domain.Checkpoint
	err := s.db.GetContext(ctx, &cp, query, jobID, domain.CheckpointTypeApprovalRequired, domain.CheckpointStatusPending, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to query blocking checkpoint: %w", err)
	}

	return &cp, nil
}

func (s *Postgres) AppendJobLog(ctx context.Context, entry *domain.JobLog) error {
	query := `
		INSERT INTO job_logs (log_id, job_id, action, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		entry.LogID,
		entry.JobID,
		entry.Action,
		entry.Message,
		nullableJSON(entry.Metadata),
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}

	return nil
}

func (s *Postgres) ListJobLogs(ctx context.Context, jobID string, limit int) ([]domain.JobLog, error) {
	query := `
		SELECT log_id, job_id, action, message, metadata, created_at
		FROM job_logs
		WHERE job_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var logs []domain.JobLog
	if err := s.db.SelectContext(ctx, &logs, query, jobID, limit); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}

	return logs, nil
}

func (s *Postgres) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM jobs GROUP BY status`

	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

func (s *Postgres) CountPendingCheckpoints(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM checkpoints WHERE status = $1`

	var count int
	if err := s.db.GetContext(ctx, &count, query, domain.CheckpointStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending checkpoints: %w", err)
	}

	return count, nil
}

// statusPlaceholders builds the $n list for the claimable status set
// starting at the given placeholder index.
func statusPlaceholders(start int) string {
	placeholders := make([]string, len(domain.ClaimableStatuses))
	for i := range domain.ClaimableStatuses {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(placeholders, ", ")
}

func claimableArgs() []interface{} {
	args := make([]interface{}, len(domain.ClaimableStatuses))
	for i, status := range domain.ClaimableStatuses {
		args[i] = status
	}
	return args
}

// nullableJSON maps an empty payload to NULL instead of the invalid empty
// string.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
