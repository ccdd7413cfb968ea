package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/worker"
)

type codeGenerationInput struct {
	Files []codeGenerationFile `json:"files"`
}

type codeGenerationFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CodeGeneration creates the requested files, gated behind a human approval
// checkpoint. A retried job creates a fresh checkpoint and re-requests
// approval.
func CodeGeneration(ctx context.Context, jc *worker.JobContext) (json.RawMessage, error) {
	var input codeGenerationInput
	if err := jc.BindInput(&input); err != nil {
		return nil, domain.NewFatalError(err)
	}
	if len(input.Files) == 0 {
		return nil, domain.NewFatalError(fmt.Errorf("no files to generate"))
	}

	if err := jc.CreateLog(ctx, "thinking", fmt.Sprintf("requesting approval to create %d file(s)", len(input.Files)), nil); err != nil {
		return nil, err
	}

	paths := make([]string, len(input.Files))
	for i, file := range input.Files {
		paths[i] = file.Path
	}

	data, err := json.Marshal(map[string]interface{}{
		"files": paths,
		"count": len(paths),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build checkpoint data: %w", err)
	}

	checkpointID, err := jc.CreateCheckpoint(
		ctx,
		domain.CheckpointTypeApprovalRequired,
		fmt.Sprintf("Approve creation of %d file(s)", len(paths)),
		data,
		nil,
	)
	if err != nil {
		return nil, err
	}

	approved, err := jc.WaitForCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	if !approved {
		return nil, disapprovalError(ctx, jc, checkpointID)
	}

	if err := jc.CreateLog(ctx, "approved", "file creation approved, generating files", nil); err != nil {
		return nil, err
	}

	for _, file := range input.Files {
		meta, _ := json.Marshal(map[string]interface{}{"path": file.Path, "bytes": len(file.Content)})
		if err := jc.CreateLog(ctx, "file_created", "generated "+file.Path, meta); err != nil {
			return nil, err
		}
	}

	output, err := json.Marshal(map[string]interface{}{
		"filesCreated": paths,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build output: %w", err)
	}

	if err := jc.CreateLog(ctx, "completed", fmt.Sprintf("created %d file(s)", len(paths)), nil); err != nil {
		return nil, err
	}

	return output, nil
}

// disapprovalError produces a failure reason that distinguishes an explicit
// rejection from expiry, since operators respond differently to each.
func disapprovalError(ctx context.Context, jc *worker.JobContext, checkpointID string) error {
	cp, err := jc.Checkpoint(ctx, checkpointID)
	if err != nil {
		return fmt.Errorf("approval not granted for checkpoint %s", checkpointID)
	}

	switch cp.Status {
	case domain.CheckpointStatusRejected:
		if cp.RejectionReason != "" {
			return fmt.Errorf("rejected by approver: %s", cp.RejectionReason)
		}
		return fmt.Errorf("rejected by approver %s", cp.ApprovedBy)
	case domain.CheckpointStatusExpired:
		return fmt.Errorf("expired awaiting approval")
	default:
		return fmt.Errorf("approval not granted (checkpoint status %s)", cp.Status)
	}
}
