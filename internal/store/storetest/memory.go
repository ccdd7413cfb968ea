// Package storetest provides an in-memory Store used by unit tests in place
// of PostgreSQL. Semantics mirror the conditional updates of the Postgres
// implementation, including atomic claims.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/store"
)

// Memory is a thread-safe in-memory store.Store.
type Memory struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	checkpoints map[string]*domain.Checkpoint
	logs        map[string][]domain.JobLog

	// Now is the clock used by expiry comparisons; tests can override it.
	Now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]*domain.Job),
		checkpoints: make(map[string]*domain.Checkpoint),
		logs:        make(map[string][]domain.JobLog),
		Now:         time.Now,
	}
}

var _ store.Store = (*Memory)(nil)

func (m *Memory) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *job
	m.jobs[job.JobID] = &copied
	return nil
}

func (m *Memory) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	copied := *job
	return &copied, nil
}

func (m *Memory) ListJobs(_ context.Context, filter store.JobFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []domain.Job
	for _, job := range m.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil {
			if !job.CreatedAt.Before(filter.Cursor.CreatedAt) &&
				!(job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.JobID < filter.Cursor.JobID) {
				continue
			}
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	return jobs, nil
}

func claimable(status string) bool {
	for _, s := range domain.ClaimableStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func (m *Memory) NextClaimableJob(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*domain.Job
	for _, job := range m.jobs {
		if claimable(job.Status) {
			candidates = append(candidates, job)
		}
	}

	if len(candidates) == 0 {
		return nil, domain.ErrJobNotFound
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	copied := *candidates[0]
	return &copied, nil
}

func (m *Memory) ClaimJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || !claimable(job.Status) {
		return nil, domain.ErrJobNotClaimable
	}

	now := m.Now()
	job.Status = domain.JobStatusRunning
	job.Attempts++
	job.StartedAt = &now
	job.UpdatedAt = now

	copied := *job
	return &copied, nil
}

func (m *Memory) CompleteJob(_ context.Context, jobID string, output json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}

	now := m.Now()
	job.Status = domain.JobStatusCompleted
	job.OutputData = output
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (m *Memory) FailJob(_ context.Context, jobID string, reason string, retry bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}

	now := m.Now()
	job.Status = domain.JobStatusFailed
	if retry {
		job.Status = domain.JobStatusRetry
	}
	job.FailureReason = reason
	job.FailedAt = &now
	job.UpdatedAt = now
	return nil
}

func (m *Memory) CancelJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}

	if !claimable(job.Status) {
		return domain.ErrJobNotCancellable
	}

	job.Status = domain.JobStatusCancelled
	job.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) CreateCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *cp
	m.checkpoints[cp.CheckpointID] = &copied
	return nil
}

func (m *Memory) GetCheckpoint(_ context.Context, checkpointID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}

	copied := *cp
	return &copied, nil
}

func (m *Memory) ListCheckpointsByJob(_ context.Context, jobID string) ([]domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var checkpoints []domain.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.JobID == jobID {
			checkpoints = append(checkpoints, *cp)
		}
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})

	return checkpoints, nil
}

func (m *Memory) ListPendingCheckpoints(_ context.Context, checkpointType string, limit, offset int) ([]domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var checkpoints []domain.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.Status != domain.CheckpointStatusPending {
			continue
		}
		if checkpointType != "" && cp.CheckpointType != checkpointType {
			continue
		}
		checkpoints = append(checkpoints, *cp)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})

	if offset >= len(checkpoints) {
		return nil, nil
	}
	checkpoints = checkpoints[offset:]
	if limit > 0 && len(checkpoints) > limit {
		checkpoints = checkpoints[:limit]
	}

	return checkpoints, nil
}

func (m *Memory) ApproveCheckpoint(_ context.Context, checkpointID, approverID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	if cp.Status != domain.CheckpointStatusPending {
		return nil, domain.ErrCheckpointNotPending
	}

	now := m.Now()
	cp.Status = domain.CheckpointStatusApproved
	cp.ApprovedBy = approverID
	cp.ApprovedAt = &now

	copied := *cp
	return &copied, nil
}

func (m *Memory) RejectCheckpoint(_ context.Context, checkpointID, approverID, reason string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	if cp.Status != domain.CheckpointStatusPending {
		return nil, domain.ErrCheckpointNotPending
	}

	now := m.Now()
	cp.Status = domain.CheckpointStatusRejected
	cp.ApprovedBy = approverID
	cp.ApprovedAt = &now
	cp.RejectionReason = reason

	copied := *cp
	return &copied, nil
}

func (m *Memory) ExpireCheckpoint(_ context.Context, checkpointID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return false, domain.ErrCheckpointNotFound
	}
	if cp.Status != domain.CheckpointStatusPending {
		return false, nil
	}

	cp.Status = domain.CheckpointStatusExpired
	return true, nil
}

func (m *Memory) ExpirePendingCheckpoints(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired int64
	for _, cp := range m.checkpoints {
		if cp.Status == domain.CheckpointStatusPending && cp.ExpiresAt != nil && cp.ExpiresAt.Before(now) {
			cp.Status = domain.CheckpointStatusExpired
			expired++
		}
	}

	return expired, nil
}

func (m *Memory) LatestBlockingCheckpoint(_ context.Context, jobID string, now time.Time) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *domain.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.JobID != jobID || !cp.Blocks(now) {
			continue
		}
		if latest == nil || cp.CreatedAt.After(latest.CreatedAt) {
			latest = cp
		}
	}

	if latest == nil {
		return nil, domain.ErrCheckpointNotFound
	}

	copied := *latest
	return &copied, nil
}

func (m *Memory) AppendJobLog(_ context.Context, entry *domain.JobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs[entry.JobID] = append(m.logs[entry.JobID], *entry)
	return nil
}

func (m *Memory) ListJobLogs(_ context.Context, jobID string, limit int) ([]domain.JobLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logs := m.logs[jobID]
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	out := make([]domain.JobLog, len(logs))
	copy(out, logs)
	return out, nil
}

func (m *Memory) CountJobsByStatus(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *Memory) CountPendingCheckpoints(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	for _, cp := range m.checkpoints {
		if cp.Status == domain.CheckpointStatusPending {
			count++
		}
	}
	return count, nil
}
