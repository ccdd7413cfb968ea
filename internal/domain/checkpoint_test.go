package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckpoint_Blocks(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name       string
		checkpoint Checkpoint
		want       bool
	}{
		{
			name: "pending approval blocks",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeApprovalRequired,
				Status:         CheckpointStatusPending,
				ExpiresAt:      &future,
			},
			want: true,
		},
		{
			name: "pending approval without expiry blocks",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeApprovalRequired,
				Status:         CheckpointStatusPending,
			},
			want: true,
		},
		{
			name: "info checkpoint never blocks",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeInfo,
				Status:         CheckpointStatusPending,
				ExpiresAt:      &future,
			},
			want: false,
		},
		{
			name: "approved checkpoint does not block",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeApprovalRequired,
				Status:         CheckpointStatusApproved,
				ExpiresAt:      &future,
			},
			want: false,
		},
		{
			name: "rejected checkpoint does not block",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeApprovalRequired,
				Status:         CheckpointStatusRejected,
				ExpiresAt:      &future,
			},
			want: false,
		},
		{
			name: "expired pending approval does not block",
			checkpoint: Checkpoint{
				CheckpointType: CheckpointTypeApprovalRequired,
				Status:         CheckpointStatusPending,
				ExpiresAt:      &past,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.checkpoint.Blocks(now))
		})
	}
}

func TestCheckpoint_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Checkpoint{}).IsExpired(now))
	assert.False(t, (&Checkpoint{ExpiresAt: &future}).IsExpired(now))
	assert.True(t, (&Checkpoint{ExpiresAt: &past}).IsExpired(now))
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusQueued, false},
		{JobStatusRunning, false},
		{JobStatusRetry, false},
		{JobStatusFailed, false},
		{JobStatusCompleted, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			job := &Job{Status: tt.status}
			assert.Equal(t, tt.want, job.IsTerminal())
		})
	}
}
