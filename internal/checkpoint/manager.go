// Package checkpoint manages human-approval gates inside job execution.
// A checkpoint blocks its job only while it is approval-required, still
// pending, and not expired. Expiry is detected lazily by readers; a cron
// sweeper additionally expires idle checkpoints in the background.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/events"
	"github.com/cuongbtq/agent-core/internal/metrics"
	"github.com/cuongbtq/agent-core/internal/report"
	"github.com/cuongbtq/agent-core/internal/store"
)

// Config holds checkpoint manager configuration
type Config struct {
	// DefaultTTL is applied when a checkpoint is created without an
	// explicit expiry (default 24h).
	DefaultTTL time.Duration
	// SweepInterval is how often the background sweeper expires idle
	// pending checkpoints (default 1m).
	SweepInterval time.Duration
}

// Manager creates, resolves and expires checkpoints.
type Manager struct {
	store     store.Store
	logger    *slog.Logger
	reporter  *report.Reporter
	publisher events.Publisher
	config    *Config

	cron *cron.Cron
	now  func() time.Time
}

// NewManager creates a checkpoint manager.
func NewManager(st store.Store, logger *slog.Logger, reporter *report.Reporter, publisher events.Publisher, cfg *Config) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = domain.DefaultCheckpointTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Manager{
		store:     st,
		logger:    logger,
		reporter:  reporter,
		publisher: publisher,
		config:    cfg,
		now:       time.Now,
	}
}

// Create stores a new checkpoint for the job. A nil expiresAt gets the
// default TTL.
func (m *Manager) Create(ctx context.Context, jobID, checkpointType, message string, data, metadata json.RawMessage, expiresAt *time.Time) (*domain.Checkpoint, error) {
	if checkpointType != domain.CheckpointTypeInfo && checkpointType != domain.CheckpointTypeApprovalRequired {
		return nil, fmt.Errorf("invalid checkpoint type: %q", checkpointType)
	}

	now := m.now()
	if expiresAt == nil {
		expiry := now.Add(m.config.DefaultTTL)
		expiresAt = &expiry
	}

	cp := &domain.Checkpoint{
		CheckpointID:   uuid.New().String(),
		JobID:          jobID,
		CheckpointType: checkpointType,
		Status:         domain.CheckpointStatusPending,
		Message:        message,
		Data:           data,
		Metadata:       metadata,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}

	if err := m.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, err
	}

	m.logger.Info("Checkpoint created",
		slog.String("checkpoint_id", cp.CheckpointID),
		slog.String("job_id", jobID),
		slog.String("checkpoint_type", checkpointType),
	)

	metrics.IncreaseCheckpointsTotalMetric(domain.CheckpointStatusPending)
	m.reporter.CheckpointEvent(cp.CheckpointID, jobID, checkpointType, domain.CheckpointStatusPending)
	m.publisher.PublishCheckpoint(ctx, events.RoutingKeyCheckpointCreated, &events.CheckpointEvent{
		CheckpointID:   cp.CheckpointID,
		JobID:          jobID,
		CheckpointType: checkpointType,
		Status:         domain.CheckpointStatusPending,
		Timestamp:      now,
	})

	return cp, nil
}

// Get returns a checkpoint by id.
func (m *Manager) Get(ctx context.Context, checkpointID string) (*domain.Checkpoint, error) {
	return m.store.GetCheckpoint(ctx, checkpointID)
}

// ListByJob returns every checkpoint of a job, oldest first.
func (m *Manager) ListByJob(ctx context.Context, jobID string) ([]domain.Checkpoint, error) {
	return m.store.ListCheckpointsByJob(ctx, jobID)
}

// ListPending returns pending checkpoints, newest first, optionally filtered
// by type.
func (m *Manager) ListPending(ctx context.Context, checkpointType string, limit, offset int) ([]domain.Checkpoint, error) {
	return m.store.ListPendingCheckpoints(ctx, checkpointType, limit, offset)
}

// Approve transitions PENDING -> APPROVED. Any other starting status fails
// with domain.ErrCheckpointNotPending.
func (m *Manager) Approve(ctx context.Context, checkpointID, approverID string) (*domain.Checkpoint, error) {
	cp, err := m.store.ApproveCheckpoint(ctx, checkpointID, approverID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Checkpoint approved",
		slog.String("checkpoint_id", checkpointID),
		slog.String("job_id", cp.JobID),
		slog.String("approved_by", approverID),
	)

	m.resolved(ctx, cp)
	return cp, nil
}

// Reject transitions PENDING -> REJECTED.
func (m *Manager) Reject(ctx context.Context, checkpointID, approverID, reason string) (*domain.Checkpoint, error) {
	cp, err := m.store.RejectCheckpoint(ctx, checkpointID, approverID, reason)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Checkpoint rejected",
		slog.String("checkpoint_id", checkpointID),
		slog.String("job_id", cp.JobID),
		slog.String("approved_by", approverID),
		slog.String("reason", reason),
	)

	m.resolved(ctx, cp)
	return cp, nil
}

func (m *Manager) resolved(ctx context.Context, cp *domain.Checkpoint) {
	metrics.IncreaseCheckpointsTotalMetric(cp.Status)
	m.reporter.CheckpointEvent(cp.CheckpointID, cp.JobID, cp.CheckpointType, cp.Status)
	m.publisher.PublishCheckpoint(ctx, events.RoutingKeyCheckpointResolved, &events.CheckpointEvent{
		CheckpointID:   cp.CheckpointID,
		JobID:          cp.JobID,
		CheckpointType: cp.CheckpointType,
		Status:         cp.Status,
		ApprovedBy:     cp.ApprovedBy,
		Timestamp:      m.now(),
	})
}

// IsBlocking reports whether the checkpoint currently blocks its job. A
// pending approval-required checkpoint whose expiry passed is flipped to
// EXPIRED as a side effect and no longer blocks.
func (m *Manager) IsBlocking(ctx context.Context, checkpointID string) (bool, error) {
	cp, err := m.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return false, err
	}

	now := m.now()
	if cp.Blocks(now) {
		return true, nil
	}

	if cp.Status == domain.CheckpointStatusPending && cp.IsExpired(now) {
		if err := m.expire(ctx, cp); err != nil {
			return false, err
		}
	}

	return false, nil
}

// GetBlockingCheckpoint returns the most recently created checkpoint that
// gates the job, or domain.ErrCheckpointNotFound when the job is unblocked.
func (m *Manager) GetBlockingCheckpoint(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	return m.store.LatestBlockingCheckpoint(ctx, jobID, m.now())
}

// ForceExpire expires a still-pending checkpoint regardless of its expiry
// timestamp. Used when a waiter gives up on the hard wait ceiling.
func (m *Manager) ForceExpire(ctx context.Context, checkpointID string) error {
	cp, err := m.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}

	if cp.Status != domain.CheckpointStatusPending {
		return nil
	}

	return m.expire(ctx, cp)
}

func (m *Manager) expire(ctx context.Context, cp *domain.Checkpoint) error {
	flipped, err := m.store.ExpireCheckpoint(ctx, cp.CheckpointID)
	if err != nil {
		return err
	}
	if !flipped {
		// Lost the race to an approver; the terminal status stands.
		return nil
	}

	m.logger.Info("Checkpoint expired",
		slog.String("checkpoint_id", cp.CheckpointID),
		slog.String("job_id", cp.JobID),
	)

	expired := *cp
	expired.Status = domain.CheckpointStatusExpired
	m.resolved(ctx, &expired)
	return nil
}

// StartSweeper runs the periodic expiry sweep until the context is
// cancelled. The sweep also refreshes the pending-checkpoint gauge.
func (m *Manager) StartSweeper(ctx context.Context) error {
	m.cron = cron.New()

	spec := fmt.Sprintf("@every %s", m.config.SweepInterval)
	_, err := m.cron.AddFunc(spec, func() {
		m.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule checkpoint sweeper: %w", err)
	}

	m.cron.Start()
	m.logger.Info("Checkpoint sweeper started",
		slog.Duration("interval", m.config.SweepInterval),
	)

	go func() {
		<-ctx.Done()
		m.cron.Stop()
		m.logger.Info("Checkpoint sweeper stopped")
	}()

	return nil
}

func (m *Manager) sweep(ctx context.Context) {
	expired, err := m.store.ExpirePendingCheckpoints(ctx, m.now())
	if err != nil {
		m.logger.Error("Checkpoint sweep failed",
			slog.Any("error", err),
		)
		m.reporter.CaptureError(err, "checkpoint_sweeper")
		return
	}

	if expired > 0 {
		m.logger.Info("Checkpoint sweep expired idle checkpoints",
			slog.Int64("count", expired),
		)
		for i := int64(0); i < expired; i++ {
			metrics.IncreaseCheckpointsTotalMetric(domain.CheckpointStatusExpired)
		}
	}

	pending, err := m.store.CountPendingCheckpoints(ctx)
	if err != nil {
		m.logger.Warn("Failed to refresh pending checkpoint gauge",
			slog.Any("error", err),
		)
		return
	}

	metrics.SetPendingCheckpointsMetric(pending)

	counts, err := m.store.CountJobsByStatus(ctx)
	if err != nil {
		m.logger.Warn("Failed to refresh jobs-by-status gauge",
			slog.Any("error", err),
		)
		return
	}

	// Absent statuses are written as zero so stale values never linger.
	for _, status := range domain.JobStatuses {
		metrics.SetJobsByStatusMetric(status, counts[status])
	}
}
