package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/agent-core/internal/checkpoint"
	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/events"
	"github.com/cuongbtq/agent-core/internal/report"
	"github.com/cuongbtq/agent-core/internal/store"
	"github.com/cuongbtq/agent-core/internal/store/storetest"
)

type testHarness struct {
	worker      *Worker
	store       *storetest.Memory
	registry    *Registry
	checkpoints *checkpoint.Manager
	cancel      context.CancelFunc
}

func newTestHarness(t *testing.T, maxConcurrent int) *testHarness {
	t.Helper()

	mem := storetest.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reporter, err := report.New(&report.Config{}, logger)
	require.NoError(t, err)

	checkpoints := checkpoint.NewManager(mem, logger, reporter, events.Noop{}, &checkpoint.Config{})
	registry := NewRegistry()

	w := New(mem, registry, checkpoints, logger, reporter, events.Noop{}, &Config{
		PollInterval:      10 * time.Millisecond,
		MaxConcurrentJobs: maxConcurrent,
		WaitPollInterval:  10 * time.Millisecond,
		WaitTimeout:       time.Second,
		ShutdownTimeout:   5 * time.Second,
	})

	return &testHarness{
		worker:      w,
		store:       mem,
		registry:    registry,
		checkpoints: checkpoints,
	}
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	done := make(chan struct{})
	go func() {
		_ = h.worker.Start(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	})
}

func (h *testHarness) createJob(t *testing.T, jobType string, input json.RawMessage, maxAttempts int) string {
	t.Helper()

	now := time.Now()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		JobType:     jobType,
		Status:      domain.JobStatusPending,
		InputData:   input,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, h.store.CreateJob(context.Background(), job))
	return job.JobID
}

func (h *testHarness) waitForStatus(t *testing.T, jobID, want string) *domain.Job {
	t.Helper()

	var job *domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = h.store.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		return job.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job never reached status %s", want)
	return job
}

func TestWorker_CompletesJob(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("echo", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		require.NoError(t, jc.CreateLog(ctx, "processing", "echoing input", nil))
		return jc.Input(), nil
	}))

	h.start(t)

	jobID := h.createJob(t, "echo", json.RawMessage(`{"value":42}`), 3)
	job := h.waitForStatus(t, jobID, domain.JobStatusCompleted)

	assert.JSONEq(t, `{"value":42}`, string(job.OutputData))
	assert.Equal(t, 1, job.Attempts)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	logs, err := h.store.ListJobLogs(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "processing", logs[0].Action)
}

func TestWorker_UnknownJobTypeFailsWithoutRetry(t *testing.T) {
	h := newTestHarness(t, 3)
	h.start(t)

	jobID := h.createJob(t, "no-such-type", nil, 3)
	job := h.waitForStatus(t, jobID, domain.JobStatusFailed)

	assert.Contains(t, job.FailureReason, "no handler registered")
	assert.Equal(t, 1, job.Attempts)
}

func TestWorker_RetriesUntilMaxAttempts(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("always-fails", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		return nil, errors.New("downstream unavailable")
	}))

	h.start(t)

	jobID := h.createJob(t, "always-fails", nil, 2)
	job := h.waitForStatus(t, jobID, domain.JobStatusFailed)

	// First attempt lands in RETRY, the second exhausts max_attempts.
	assert.Equal(t, 2, job.Attempts)
	assert.Contains(t, job.FailureReason, "downstream unavailable")
	assert.NotNil(t, job.FailedAt)
}

func TestWorker_FatalErrorNeverRetried(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("bad-input", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		return nil, domain.NewFatalError(errors.New("input is malformed"))
	}))

	h.start(t)

	jobID := h.createJob(t, "bad-input", nil, 5)
	job := h.waitForStatus(t, jobID, domain.JobStatusFailed)

	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.FailureReason, "input is malformed")
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("panics", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		panic("boom")
	}))
	require.NoError(t, h.registry.Register("echo", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		return jc.Input(), nil
	}))

	h.start(t)

	panicJob := h.createJob(t, "panics", nil, 1)
	job := h.waitForStatus(t, panicJob, domain.JobStatusFailed)
	assert.Contains(t, job.FailureReason, "handler panicked")

	// The worker survives the panic and keeps processing.
	okJob := h.createJob(t, "echo", json.RawMessage(`{}`), 1)
	h.waitForStatus(t, okJob, domain.JobStatusCompleted)
}

func TestWorker_ConcurrencyBound(t *testing.T) {
	h := newTestHarness(t, 1)

	release := make(chan struct{})
	started := make(chan string, 2)

	require.NoError(t, h.registry.Register("slow", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		started <- jc.JobID()
		<-release
		return nil, nil
	}))

	h.start(t)

	first := h.createJob(t, "slow", nil, 1)
	second := h.createJob(t, "slow", nil, 1)

	// Exactly one job starts while the only slot is held.
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("no job started")
	}

	time.Sleep(100 * time.Millisecond)
	select {
	case <-started:
		t.Fatal("second job started despite exhausted concurrency")
	default:
	}

	close(release)

	h.waitForStatus(t, first, domain.JobStatusCompleted)
	h.waitForStatus(t, second, domain.JobStatusCompleted)
}

func TestWorker_BlockedJobIsSkipped(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("echo", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		return jc.Input(), nil
	}))

	jobID := h.createJob(t, "echo", json.RawMessage(`{}`), 1)

	cp, err := h.checkpoints.Create(context.Background(), jobID, domain.CheckpointTypeApprovalRequired, "needs approval", nil, nil, nil)
	require.NoError(t, err)

	h.start(t)

	// The gated job must stay untouched across several poll cycles.
	time.Sleep(100 * time.Millisecond)
	job, err := h.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	_, err = h.checkpoints.Approve(context.Background(), cp.CheckpointID, "reviewer-1")
	require.NoError(t, err)

	h.waitForStatus(t, jobID, domain.JobStatusCompleted)
}

func TestJobContext_WaitForCheckpoint(t *testing.T) {
	h := newTestHarness(t, 3)

	outcome := make(chan bool, 1)
	require.NoError(t, h.registry.Register("gated", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		id, err := jc.CreateCheckpoint(ctx, domain.CheckpointTypeApprovalRequired, "proceed?", nil, nil)
		if err != nil {
			return nil, err
		}
		approved, err := jc.WaitForCheckpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		outcome <- approved
		return json.RawMessage(`{}`), nil
	}))

	h.start(t)

	jobID := h.createJob(t, "gated", json.RawMessage(`{}`), 1)

	var pending []domain.Checkpoint
	require.Eventually(t, func() bool {
		var err error
		pending, err = h.checkpoints.ListPending(context.Background(), domain.CheckpointTypeApprovalRequired, 10, 0)
		require.NoError(t, err)
		return len(pending) == 1
	}, 5*time.Second, 5*time.Millisecond)

	_, err := h.checkpoints.Approve(context.Background(), pending[0].CheckpointID, "reviewer-1")
	require.NoError(t, err)

	select {
	case approved := <-outcome:
		assert.True(t, approved)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never resumed")
	}

	h.waitForStatus(t, jobID, domain.JobStatusCompleted)
}

func TestJobContext_WaitForCheckpointRejected(t *testing.T) {
	h := newTestHarness(t, 3)

	require.NoError(t, h.registry.Register("gated", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		id, err := jc.CreateCheckpoint(ctx, domain.CheckpointTypeApprovalRequired, "proceed?", nil, nil)
		if err != nil {
			return nil, err
		}
		approved, err := jc.WaitForCheckpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, domain.NewFatalError(errors.New("change was rejected"))
		}
		return json.RawMessage(`{}`), nil
	}))

	h.start(t)

	jobID := h.createJob(t, "gated", json.RawMessage(`{}`), 3)

	var pending []domain.Checkpoint
	require.Eventually(t, func() bool {
		var err error
		pending, err = h.checkpoints.ListPending(context.Background(), domain.CheckpointTypeApprovalRequired, 10, 0)
		require.NoError(t, err)
		return len(pending) == 1
	}, 5*time.Second, 5*time.Millisecond)

	_, err := h.checkpoints.Reject(context.Background(), pending[0].CheckpointID, "reviewer-1", "not safe")
	require.NoError(t, err)

	job := h.waitForStatus(t, jobID, domain.JobStatusFailed)
	assert.Contains(t, job.FailureReason, "rejected")
}

// cancelAwareStore fails outcome writes once the caller's context is
// cancelled, the way ExecContext would against a real database.
type cancelAwareStore struct {
	store.Store
}

func (s cancelAwareStore) CompleteJob(ctx context.Context, jobID string, output json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.CompleteJob(ctx, jobID, output)
}

func (s cancelAwareStore) FailJob(ctx context.Context, jobID string, reason string, retry bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.FailJob(ctx, jobID, reason, retry)
}

func TestWorker_ShutdownPersistsInFlightOutcome(t *testing.T) {
	mem := storetest.NewMemory()
	st := cancelAwareStore{Store: mem}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reporter, err := report.New(&report.Config{}, logger)
	require.NoError(t, err)

	checkpoints := checkpoint.NewManager(st, logger, reporter, events.Noop{}, &checkpoint.Config{})
	registry := NewRegistry()

	w := New(st, registry, checkpoints, logger, reporter, events.Noop{}, &Config{
		PollInterval:      10 * time.Millisecond,
		MaxConcurrentJobs: 1,
		WaitPollInterval:  10 * time.Millisecond,
		WaitTimeout:       time.Second,
		ShutdownTimeout:   5 * time.Second,
	})

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, registry.Register("slow-echo", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		close(started)
		<-release
		return jc.Input(), nil
	}))

	now := time.Now()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		JobType:     "slow-echo",
		Status:      domain.JobStatusPending,
		InputData:   json.RawMessage(`{"n":1}`),
		MaxAttempts: 3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, mem.CreateJob(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	// Shut down while the handler is still running, then let it finish.
	cancel()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	got, err := mem.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"n":1}`, string(got.OutputData))
}

func TestWorker_ClaimsByPriorityThenAge(t *testing.T) {
	h := newTestHarness(t, 1)

	var mu sync.Mutex
	var order []string
	require.NoError(t, h.registry.Register("record", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		mu.Lock()
		order = append(order, jc.JobID())
		mu.Unlock()
		return nil, nil
	}))

	base := time.Now()
	create := func(priority int, createdAt time.Time) string {
		job := &domain.Job{
			JobID:       uuid.New().String(),
			JobType:     "record",
			Status:      domain.JobStatusPending,
			Priority:    priority,
			MaxAttempts: 1,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}
		require.NoError(t, h.store.CreateJob(context.Background(), job))
		return job.JobID
	}

	// All jobs exist before the worker starts; claim order must be
	// priority descending, then created_at ascending.
	low := create(0, base.Add(-3*time.Minute))
	highNew := create(5, base.Add(-1*time.Minute))
	highOld := create(5, base.Add(-2*time.Minute))

	h.start(t)

	for _, id := range []string{low, highNew, highOld} {
		h.waitForStatus(t, id, domain.JobStatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{highOld, highNew, low}, order)
}

func TestJobContext_WaitForCheckpointCeilingExpires(t *testing.T) {
	h := newTestHarness(t, 1)

	checkpointIDs := make(chan string, 1)
	require.NoError(t, h.registry.Register("needs-approval", func(ctx context.Context, jc *JobContext) (json.RawMessage, error) {
		id, err := jc.CreateCheckpoint(ctx, domain.CheckpointTypeApprovalRequired, "waiting for review", nil, nil)
		if err != nil {
			return nil, err
		}
		checkpointIDs <- id
		approved, err := jc.WaitForCheckpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, domain.NewFatalError(errors.New("approval window expired"))
		}
		return json.RawMessage(`{}`), nil
	}))

	h.start(t)

	// Nobody resolves the checkpoint; the wait gives up at its ceiling and
	// force-expires it.
	jobID := h.createJob(t, "needs-approval", nil, 3)
	job := h.waitForStatus(t, jobID, domain.JobStatusFailed)

	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.FailureReason, "approval window expired")

	cp, err := h.checkpoints.Get(context.Background(), <-checkpointIDs)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckpointStatusExpired, cp.Status)
}
