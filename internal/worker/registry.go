package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cuongbtq/agent-core/internal/domain"
)

// HandlerFunc implements one job type's business logic. The returned payload
// becomes the job's output data; a returned error fails the job and its
// message becomes the failure reason.
type HandlerFunc func(ctx context.Context, jc *JobContext) (json.RawMessage, error)

// Registry maps job types to handlers. The set is closed at process start:
// registration rejects duplicates, and claiming a job with an unregistered
// type is a fatal, non-retryable failure.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for the given job type
func (r *Registry) Register(jobType string, handler HandlerFunc) error {
	if jobType == "" {
		return fmt.Errorf("job type must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for job type %q must not be nil", jobType)
	}
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}

	r.handlers[jobType] = handler
	return nil
}

// Resolve looks up the handler for a job type
func (r *Registry) Resolve(jobType string) (HandlerFunc, error) {
	handler, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	return handler, nil
}

// Types returns the registered job types in sorted order
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
