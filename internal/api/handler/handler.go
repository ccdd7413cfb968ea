package handler

import (
	"log/slog"

	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/orchestrator"
	"github.com/cuongbtq/agent-core/internal/store"
)

// maxJobLogs caps the log page returned with a job to keep payloads bounded.
const maxJobLogs = 100

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger             *slog.Logger
	Store              store.Store
	Checkpoints        *checkpoint.Manager
	Orchestrator       *orchestrator.Orchestrator
	DefaultMaxAttempts int
	JobTypes           []string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger             *slog.Logger
	store              store.Store
	defaultMaxAttempts int
	jobTypes           map[string]bool
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	jobTypes := make(map[string]bool, len(deps.JobTypes))
	for _, jobType := range deps.JobTypes {
		jobTypes[jobType] = true
	}

	return &JobHandler{
		logger:             deps.Logger,
		store:              deps.Store,
		defaultMaxAttempts: deps.DefaultMaxAttempts,
		jobTypes:           jobTypes,
	}
}

// CheckpointHandler handles checkpoint review HTTP requests
type CheckpointHandler struct {
	logger      *slog.Logger
	store       store.Store
	checkpoints *checkpoint.Manager
}

// NewCheckpointHandler creates a new CheckpointHandler instance
func NewCheckpointHandler(deps *Dependencies) *CheckpointHandler {
	return &CheckpointHandler{
		logger:      deps.Logger,
		store:       deps.Store,
		checkpoints: deps.Checkpoints,
	}
}

// TaskHandler handles orchestrator task HTTP requests
type TaskHandler struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger:       deps.Logger,
		orchestrator: deps.Orchestrator,
	}
}
