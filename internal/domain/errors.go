package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotClaimable is returned when a claim hits a job that is no
	// longer in a claimable status (already claimed or terminal)
	ErrJobNotClaimable = errors.New("job not in a claimable status")

	// ErrJobNotCancellable is returned when cancellation targets a job that
	// already started or finished
	ErrJobNotCancellable = errors.New("job not in a cancellable status")

	// ErrUnknownJobType is returned when no handler is registered for a
	// job's type; this is fatal and never retried
	ErrUnknownJobType = errors.New("no handler registered for job type")

	// ErrCheckpointNotFound is returned when a checkpoint cannot be found
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointNotPending is returned when approve/reject targets a
	// checkpoint that already reached a terminal status
	ErrCheckpointNotPending = errors.New("checkpoint not in PENDING status")

	// ErrTaskNotFound is returned when an orchestrator task id is unknown
	ErrTaskNotFound = errors.New("task not found")

	// ErrPlanNotReady is returned when a task exists but planning has not
	// finished yet
	ErrPlanNotReady = errors.New("task plan not ready")
)

// FatalError wraps handler failures that must never be retried, such as
// malformed input the handler cannot parse.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal error: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError creates a new fatal error
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// RetryableError marks a failure as transient, such as an upstream rate
// limit. Handlers use it to decide whether an error should follow the
// normal attempt-capped retry policy or be escalated to a FatalError.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
