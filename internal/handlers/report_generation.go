package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/llm"
	"github.com/cuongbtq/agent-core/internal/worker"
)

const reportSystemPrompt = "You are a precise analyst. Write a concise, well-structured report on the given subject. Stick to the provided material."

type reportGenerationInput struct {
	Subject  string `json:"subject"`
	Material string `json:"material,omitempty"`
}

// ReportGeneration produces a model-written report from the job input.
// Transient LLM failures (rate limits, upstream or network errors) follow
// the normal retry policy; any other completion error is fatal because a
// retry would hit the same rejection.
type ReportGeneration struct {
	llm *llm.Client
}

// NewReportGeneration creates the report handler
func NewReportGeneration(client *llm.Client) *ReportGeneration {
	return &ReportGeneration{llm: client}
}

// Handle implements the report-generation job type.
func (h *ReportGeneration) Handle(ctx context.Context, jc *worker.JobContext) (json.RawMessage, error) {
	var input reportGenerationInput
	if err := jc.BindInput(&input); err != nil {
		return nil, domain.NewFatalError(err)
	}
	if input.Subject == "" {
		return nil, domain.NewFatalError(fmt.Errorf("report subject is required"))
	}

	if err := jc.CreateLog(ctx, "thinking", "generating report: "+input.Subject, nil); err != nil {
		return nil, err
	}

	prompt := input.Subject
	if input.Material != "" {
		prompt = fmt.Sprintf("%s\n\nMaterial:\n%s", input.Subject, input.Material)
	}

	completion, err := h.llm.Complete(ctx, &llm.Request{
		SystemPrompt: reportSystemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		var transient *domain.RetryableError
		if errors.As(err, &transient) {
			return nil, fmt.Errorf("report completion failed: %w", err)
		}
		return nil, domain.NewFatalError(fmt.Errorf("report completion failed: %w", err))
	}

	usage, _ := json.Marshal(map[string]interface{}{
		"input_tokens":  completion.InputTokens,
		"output_tokens": completion.OutputTokens,
	})
	if _, err := jc.CreateCheckpoint(ctx, domain.CheckpointTypeInfo, "report generated", usage, nil); err != nil {
		return nil, err
	}

	output, err := json.Marshal(map[string]interface{}{
		"report":        completion.Content,
		"input_tokens":  completion.InputTokens,
		"output_tokens": completion.OutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build output: %w", err)
	}

	if err := jc.CreateLog(ctx, "completed", "report generation finished", usage); err != nil {
		return nil, err
	}

	return output, nil
}
