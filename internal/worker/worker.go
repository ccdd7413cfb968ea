// Package worker drives the durable job execution loop. One cooperative poll
// loop claims eligible jobs from the store and runs each handler in its own
// goroutine, bounded by a weighted semaphore. A handler blocked on a
// checkpoint wait holds its concurrency slot for the whole wait; with a
// small MaxConcurrentJobs a few stuck approvals can starve the worker, which
// is an accepted capacity-planning trade-off.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/events"
	"github.com/cuongbtq/agent-core/internal/metrics"
	"github.com/cuongbtq/agent-core/internal/report"
	"github.com/cuongbtq/agent-core/internal/store"
)

// Config holds worker configuration
type Config struct {
	PollInterval      time.Duration
	MaxConcurrentJobs int
	WaitPollInterval  time.Duration
	WaitTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Worker polls the store for eligible jobs and drives them to completion.
type Worker struct {
	store       store.Store
	registry    *Registry
	checkpoints *checkpoint.Manager
	logger      *slog.Logger
	reporter    *report.Reporter
	publisher   events.Publisher
	config      *Config

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a worker instance
func New(st store.Store, registry *Registry, checkpoints *checkpoint.Manager, logger *slog.Logger, reporter *report.Reporter, publisher events.Publisher, cfg *Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.WaitPollInterval <= 0 {
		cfg.WaitPollInterval = 5 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 24 * time.Hour
	}

	return &Worker{
		store:       st,
		registry:    registry,
		checkpoints: checkpoints,
		logger:      logger,
		reporter:    reporter,
		publisher:   publisher,
		config:      cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
	}
}

// Start runs the poll loop until the context is cancelled, then waits for
// in-flight jobs to drain up to the shutdown timeout.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("max_concurrent_jobs", w.config.MaxConcurrentJobs),
		slog.Any("job_types", w.registry.Types()),
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker context cancelled, draining in-flight jobs...")
			return w.drain()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick claims and launches at most one job. Store errors are reported and
// swallowed so the loop survives to the next tick.
func (w *Worker) tick(ctx context.Context) {
	// All concurrency slots busy: skip this tick entirely.
	if !w.sem.TryAcquire(1) {
		w.logger.Debug("All concurrency slots busy, skipping tick")
		return
	}

	job, err := w.store.NextClaimableJob(ctx)
	if err != nil {
		w.sem.Release(1)
		if errors.Is(err, domain.ErrJobNotFound) {
			return
		}
		w.logger.Error("Failed to query claimable job",
			slog.Any("error", err),
		)
		w.reporter.CaptureError(err, "worker_poll")
		return
	}

	// A job gated by an unresolved blocking checkpoint stays untouched;
	// checkpoint resolution unblocks it on a later tick.
	if _, err := w.checkpoints.GetBlockingCheckpoint(ctx, job.JobID); err == nil {
		w.sem.Release(1)
		w.logger.Debug("Job has a blocking checkpoint, skipping",
			slog.String("job_id", job.JobID),
		)
		return
	} else if !errors.Is(err, domain.ErrCheckpointNotFound) {
		w.sem.Release(1)
		w.logger.Error("Failed to query blocking checkpoint",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		w.reporter.CaptureError(err, "worker_poll")
		return
	}

	oldStatus := job.Status
	claimed, err := w.store.ClaimJob(ctx, job.JobID)
	if err != nil {
		w.sem.Release(1)
		if errors.Is(err, domain.ErrJobNotClaimable) {
			// Another worker got there first.
			w.logger.Debug("Job no longer claimable, skipping",
				slog.String("job_id", job.JobID),
			)
			return
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		w.reporter.CaptureError(err, "worker_poll")
		return
	}

	w.transition(ctx, claimed, oldStatus, domain.JobStatusRunning, "claimed by worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.runJob(ctx, claimed)
	}()
}

// runJob executes a claimed job through its handler and records the outcome.
// Outcome writes use a context detached from the poll loop so a shutdown
// that cancels the loop mid-handler cannot strand the job in RUNNING.
func (w *Worker) runJob(ctx context.Context, job *domain.Job) {
	metrics.IncreaseActiveJobsMetric()
	defer metrics.DecreaseActiveJobsMetric()

	persistCtx := context.WithoutCancel(ctx)

	w.logger.Info("Processing job",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	started := time.Now()

	handler, err := w.registry.Resolve(job.JobType)
	if err != nil {
		// Unknown job type is fatal: never retried.
		w.logger.Error("No handler registered for job type",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
		)
		w.failJob(persistCtx, job, err.Error(), false, started)
		w.reporter.CaptureHandlerError(err, job.JobID, job.JobType, "")
		return
	}

	jc := &JobContext{
		job:              job,
		store:            w.store,
		checkpoints:      w.checkpoints,
		logger:           w.logger,
		waitPollInterval: w.config.WaitPollInterval,
		waitTimeout:      w.config.WaitTimeout,
	}

	output, err := w.invoke(ctx, handler, jc)
	if err != nil {
		var fatal *domain.FatalError
		retry := job.Attempts < job.MaxAttempts && !errors.As(err, &fatal)
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.JobID),
			slog.String("job_type", job.JobType),
			slog.Bool("will_retry", retry),
			slog.Any("error", err),
		)
		w.failJob(persistCtx, job, err.Error(), retry, started)
		w.reporter.CaptureHandlerError(err, job.JobID, job.JobType, jc.LastCheckpointID())
		return
	}

	if err := w.store.CompleteJob(persistCtx, job.JobID, output); err != nil {
		w.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		w.reporter.CaptureError(err, "worker_complete")
		return
	}

	duration := time.Since(started)
	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Duration("duration", duration),
	)

	metrics.ObserveJobDurationMetric(domain.JobStatusCompleted, duration.Seconds())
	w.transition(persistCtx, job, domain.JobStatusRunning, domain.JobStatusCompleted, "")
}

// invoke runs the handler, converting panics into ordinary errors so one
// misbehaving handler cannot take down the worker process.
func (w *Worker) invoke(ctx context.Context, handler HandlerFunc, jc *JobContext) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, jc)
}

func (w *Worker) failJob(ctx context.Context, job *domain.Job, reason string, retry bool, started time.Time) {
	if err := w.store.FailJob(ctx, job.JobID, reason, retry); err != nil {
		w.logger.Error("Failed to mark job failed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		w.reporter.CaptureError(err, "worker_fail")
		return
	}

	newStatus := domain.JobStatusFailed
	if retry {
		newStatus = domain.JobStatusRetry
	}

	metrics.ObserveJobDurationMetric(newStatus, time.Since(started).Seconds())
	w.transition(ctx, job, domain.JobStatusRunning, newStatus, reason)
}

// transition records a status change in metrics, breadcrumbs and the event
// stream.
func (w *Worker) transition(ctx context.Context, job *domain.Job, oldStatus, newStatus, reason string) {
	metrics.IncreaseJobsTotalMetric(newStatus)
	w.reporter.JobTransition(job.JobID, oldStatus, newStatus, reason)
	w.publisher.PublishJobStatus(ctx, &events.JobStatusEvent{
		JobID:     job.JobID,
		JobType:   job.JobType,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// drain waits for in-flight jobs up to the shutdown timeout.
func (w *Worker) drain() error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timeout := w.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		w.logger.Info("Worker stopped, all jobs drained")
		return nil
	case <-time.After(timeout):
		w.logger.Warn("Worker shutdown timeout reached with jobs still in flight")
		return fmt.Errorf("shutdown timeout reached after %s", timeout)
	}
}
