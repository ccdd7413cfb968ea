package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/llm"
)

const planningSystemPrompt = `You are a planning assistant. Decompose the task into a short ordered list of steps.
Respond with ONLY a JSON object of the form:
{"steps":[{"step_number":1,"description":"...","assigned_agent":"code","dependencies":[]}]}
assigned_agent must be one of: code, research, writing, security, business, automation.`

type plannedStep struct {
	StepNumber    int    `json:"step_number"`
	Description   string `json:"description"`
	AssignedAgent string `json:"assigned_agent"`
	Dependencies  []int  `json:"dependencies"`
}

type plannedResponse struct {
	Steps []plannedStep `json:"steps"`
}

// plan asks the model to decompose the task. Any planning or parsing failure
// degrades to a deterministic single-step plan whose role comes from keyword
// matching, so planning always succeeds.
func (o *Orchestrator) plan(ctx context.Context, taskID, task string) (*domain.TaskPlan, int) {
	completion, err := o.llm.Complete(ctx, &llm.Request{
		SystemPrompt: planningSystemPrompt,
		UserPrompt:   task,
	})
	if err != nil {
		o.logger.Warn("Planning call failed, falling back to single-step plan",
			slog.String("task_id", taskID),
			slog.Any("error", err),
		)
		return o.fallbackPlan(taskID, task), 0
	}

	steps, err := parsePlannedSteps(completion.Content)
	if err != nil {
		o.logger.Warn("Plan response unparseable, falling back to single-step plan",
			slog.String("task_id", taskID),
			slog.Any("error", err),
		)
		return o.fallbackPlan(taskID, task), completion.TotalTokens()
	}

	planSteps := make([]domain.PlanStep, len(steps))
	for i, step := range steps {
		planSteps[i] = domain.PlanStep{
			StepNumber:    i + 1,
			Description:   step.Description,
			AssignedAgent: domain.AgentRole(step.AssignedAgent),
			Dependencies:  step.Dependencies,
			Status:        domain.StepStatusPending,
		}
	}

	return &domain.TaskPlan{
		TaskID:       taskID,
		OriginalTask: task,
		Steps:        planSteps,
		CreatedAt:    time.Now(),
	}, completion.TotalTokens()
}

// fallbackPlan builds the deterministic single-step plan.
func (o *Orchestrator) fallbackPlan(taskID, task string) *domain.TaskPlan {
	return &domain.TaskPlan{
		TaskID:       taskID,
		OriginalTask: task,
		Steps: []domain.PlanStep{
			{
				StepNumber:    1,
				Description:   task,
				AssignedAgent: fallbackRole(task),
				Status:        domain.StepStatusPending,
			},
		},
		CreatedAt: time.Now(),
	}
}

// parsePlannedSteps extracts and validates the JSON step list from a model
// response, tolerating surrounding prose and code fences.
func parsePlannedSteps(content string) ([]plannedStep, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in plan response")
	}

	var parsed plannedResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse plan response: %w", err)
	}

	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("plan response has no steps")
	}

	for _, step := range parsed.Steps {
		if step.Description == "" {
			return nil, fmt.Errorf("plan step %d has no description", step.StepNumber)
		}
		if !domain.AgentRole(step.AssignedAgent).Valid() {
			return nil, fmt.Errorf("plan step %d has unknown agent role %q", step.StepNumber, step.AssignedAgent)
		}
	}

	return parsed.Steps, nil
}
