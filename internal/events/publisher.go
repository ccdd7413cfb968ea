// Package events publishes job and checkpoint lifecycle events to RabbitMQ
// for external consumers (audit trails, notification fanout). The stream is
// optional; a nil-safe no-op publisher is used when disabled.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cuongbtq/agent-core/shared/rabbitmq"
)

// Routing keys for lifecycle events
const (
	RoutingKeyJobStatus          = "job.status"
	RoutingKeyCheckpointCreated  = "checkpoint.created"
	RoutingKeyCheckpointResolved = "checkpoint.resolved"
)

// JobStatusEvent announces a job status transition.
type JobStatusEvent struct {
	JobID     string    `json:"job_id"`
	JobType   string    `json:"job_type"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckpointEvent announces checkpoint creation or resolution.
type CheckpointEvent struct {
	CheckpointID   string    `json:"checkpoint_id"`
	JobID          string    `json:"job_id"`
	CheckpointType string    `json:"checkpoint_type"`
	Status         string    `json:"status"`
	ApprovedBy     string    `json:"approved_by,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	PublishJobStatus(ctx context.Context, event *JobStatusEvent)
	PublishCheckpoint(ctx context.Context, routingKey string, event *CheckpointEvent)
}

// Rabbit publishes events through the shared RabbitMQ client. Publish
// failures are logged and swallowed: the event stream is best-effort and
// must never fail a job.
type Rabbit struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbit creates a RabbitMQ-backed publisher.
func NewRabbit(client *rabbitmq.Client, logger *slog.Logger) *Rabbit {
	return &Rabbit{
		client: client,
		logger: logger,
	}
}

func (p *Rabbit) PublishJobStatus(ctx context.Context, event *JobStatusEvent) {
	p.publish(ctx, RoutingKeyJobStatus, event)
}

func (p *Rabbit) PublishCheckpoint(ctx context.Context, routingKey string, event *CheckpointEvent) {
	p.publish(ctx, routingKey, event)
}

func (p *Rabbit) publish(ctx context.Context, routingKey string, event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal lifecycle event",
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, routingKey, body, "application/json"); err != nil {
		p.logger.Error("Failed to publish lifecycle event",
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
	}
}

// Noop discards every event; used when the event stream is disabled.
type Noop struct{}

func (Noop) PublishJobStatus(context.Context, *JobStatusEvent) {}

func (Noop) PublishCheckpoint(context.Context, string, *CheckpointEvent) {}
