package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/worker"
)

// SimpleTask echoes its input back as output. It exists to exercise the full
// job lifecycle end to end: start/end logs and an advisory checkpoint for
// audit visibility, no approval gate.
func SimpleTask(ctx context.Context, jc *worker.JobContext) (json.RawMessage, error) {
	if err := jc.CreateLog(ctx, "thinking", "starting simple task", nil); err != nil {
		return nil, err
	}

	if _, err := jc.CreateCheckpoint(ctx, domain.CheckpointTypeInfo, "simple task running", jc.Input(), nil); err != nil {
		return nil, err
	}

	output, err := json.Marshal(map[string]interface{}{
		"echo":         jc.Input(),
		"attempt":      jc.Attempt(),
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build output: %w", err)
	}

	if err := jc.CreateLog(ctx, "completed", "simple task finished", nil); err != nil {
		return nil, err
	}

	return output, nil
}
