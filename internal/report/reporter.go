// Package report forwards job and checkpoint lifecycle signals to an
// error-reporting backend. With no DSN configured every call is a no-op, so
// callers never need to guard reporting sites.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config holds reporter configuration
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
}

// Reporter emits breadcrumbs for lifecycle transitions and captures handler
// exceptions.
type Reporter struct {
	enabled bool
	logger  *slog.Logger
}

// New initializes the reporting backend. An empty DSN returns a disabled
// reporter.
func New(cfg *Config, logger *slog.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		logger.Info("Error reporting disabled - no DSN configured")
		return &Reporter{enabled: false, logger: logger}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error reporting: %w", err)
	}

	logger.Info("Error reporting enabled",
		slog.String("environment", cfg.Environment),
	)

	return &Reporter{enabled: true, logger: logger}, nil
}

// JobTransition records a breadcrumb for a job status change.
func (r *Reporter) JobTransition(jobID, oldStatus, newStatus, reason string) {
	if !r.enabled {
		return
	}

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "job.transition",
		Message:  fmt.Sprintf("job %s: %s -> %s", jobID, oldStatus, newStatus),
		Level:    sentry.LevelInfo,
		Data: map[string]interface{}{
			"job_id":     jobID,
			"old_status": oldStatus,
			"new_status": newStatus,
			"reason":     reason,
		},
	})
}

// CheckpointEvent records a breadcrumb for checkpoint creation or resolution.
func (r *Reporter) CheckpointEvent(checkpointID, jobID, checkpointType, status string) {
	if !r.enabled {
		return
	}

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "checkpoint." + status,
		Message:  fmt.Sprintf("checkpoint %s (%s) for job %s: %s", checkpointID, checkpointType, jobID, status),
		Level:    sentry.LevelInfo,
		Data: map[string]interface{}{
			"checkpoint_id":   checkpointID,
			"job_id":          jobID,
			"checkpoint_type": checkpointType,
			"status":          status,
		},
	})
}

// CaptureHandlerError captures an unhandled handler exception tagged with the
// job context. checkpointID may be empty when no checkpoint was involved.
func (r *Reporter) CaptureHandlerError(err error, jobID, jobType, checkpointID string) {
	if !r.enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_id", jobID)
		scope.SetTag("job_type", jobType)
		if checkpointID != "" {
			scope.SetTag("checkpoint_id", checkpointID)
		}
		sentry.CaptureException(err)
	})
}

// CaptureError captures an infrastructure error outside any job context.
func (r *Reporter) CaptureError(err error, component string) {
	if !r.enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}

// Flush drains buffered events; call on shutdown.
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.enabled {
		return
	}
	sentry.Flush(timeout)
}
