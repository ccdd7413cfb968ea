// Package orchestrator is the ephemeral plan/execute/aggregate pipeline for
// ad-hoc multi-step delegation. Tasks and results live in process-local maps
// and are lost on restart; unlike the worker there is no bound on concurrent
// in-flight tasks, which is an accepted resource-exhaustion risk of this
// path.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/agent-core/internal/domain"
	"github.com/cuongbtq/agent-core/internal/llm"
)

const aggregationSystemPrompt = "You are an editor. Synthesize the provided step outputs into one coherent final answer. Do not mention the steps themselves."

// stepMaxAttempts allows one retry per step.
const stepMaxAttempts = 2

// Config holds orchestrator configuration
type Config struct {
	// CostPer1KTokens converts token totals into a cost estimate.
	CostPer1KTokens float64
}

// Orchestrator decomposes free-form tasks into role-assigned steps and runs
// them sequentially through the text-completion service.
type Orchestrator struct {
	llm    *llm.Client
	logger *slog.Logger
	config *Config

	mu       sync.RWMutex
	statuses map[string]string
	plans    map[string]*domain.TaskPlan
	results  map[string]*domain.TaskResult
}

// New creates an orchestrator
func New(client *llm.Client, logger *slog.Logger, cfg *Config) *Orchestrator {
	if cfg.CostPer1KTokens <= 0 {
		cfg.CostPer1KTokens = 0.002
	}

	return &Orchestrator{
		llm:      client,
		logger:   logger,
		config:   cfg,
		statuses: make(map[string]string),
		plans:    make(map[string]*domain.TaskPlan),
		results:  make(map[string]*domain.TaskResult),
	}
}

// SubmitTask starts asynchronous processing of the task and returns its id
// before completion.
func (o *Orchestrator) SubmitTask(task, taskContext, submitterID string, priority int) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task text must not be empty")
	}

	taskID := uuid.New().String()

	o.mu.Lock()
	o.statuses[taskID] = domain.TaskStatusPending
	o.mu.Unlock()

	o.logger.Info("Task submitted",
		slog.String("task_id", taskID),
		slog.String("submitter_id", submitterID),
		slog.Int("priority", priority),
	)

	go o.process(context.Background(), taskID, task, taskContext)

	return taskID, nil
}

// Status returns the task's current status and, once terminal, its result.
func (o *Orchestrator) Status(taskID string) (string, *domain.TaskResult, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status, ok := o.statuses[taskID]
	if !ok {
		return "", nil, domain.ErrTaskNotFound
	}

	return status, o.results[taskID], nil
}

// Plan returns a snapshot of the task's plan. The processing goroutine keeps
// mutating step state under the mutex, so callers get a deep copy instead of
// the live plan. ErrPlanNotReady is returned until planning finished.
func (o *Orchestrator) Plan(taskID string) (*domain.TaskPlan, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if _, ok := o.statuses[taskID]; !ok {
		return nil, domain.ErrTaskNotFound
	}

	plan, ok := o.plans[taskID]
	if !ok {
		return nil, domain.ErrPlanNotReady
	}

	return plan.Clone(), nil
}

// process runs the plan/execute/aggregate pipeline for one task.
func (o *Orchestrator) process(ctx context.Context, taskID, task, taskContext string) {
	started := time.Now()

	o.setStatus(taskID, domain.TaskStatusRunning)

	plan, planTokens := o.plan(ctx, taskID, task)
	totalTokens := planTokens

	o.mu.Lock()
	o.plans[taskID] = plan
	o.mu.Unlock()

	o.logger.Info("Task planned",
		slog.String("task_id", taskID),
		slog.Int("steps", len(plan.Steps)),
	)

	// Execute steps strictly in list order; dependencies are recorded but
	// never reorder or parallelize execution. A step failure does not abort
	// later steps.
	for i := range plan.Steps {
		totalTokens += o.executeStep(ctx, taskID, plan, i, taskContext)
	}

	var completed []domain.PlanStep
	for _, step := range plan.Steps {
		if step.Status == domain.StepStatusCompleted {
			completed = append(completed, step)
		}
	}

	result := &domain.TaskResult{
		TaskID:      taskID,
		Steps:       plan.Steps,
		CompletedAt: time.Now(),
	}

	if len(completed) == 0 {
		result.Status = domain.TaskStatusFailed
		result.Error = fmt.Sprintf("all %d step(s) failed", len(plan.Steps))
	} else {
		finalText, aggregateTokens := o.aggregate(ctx, taskID, task, completed)
		totalTokens += aggregateTokens
		result.Status = domain.TaskStatusCompleted
		result.Result = finalText
	}

	result.TotalTokens = totalTokens
	result.CostUSD = float64(totalTokens) / 1000 * o.config.CostPer1KTokens
	result.Duration = time.Since(started)

	o.mu.Lock()
	o.results[taskID] = result
	o.statuses[taskID] = result.Status
	o.mu.Unlock()

	o.logger.Info("Task finished",
		slog.String("task_id", taskID),
		slog.String("status", result.Status),
		slog.Int("total_tokens", totalTokens),
		slog.Duration("duration", result.Duration),
	)
}

// executeStep runs one plan step with up to one retry and returns the tokens
// it consumed.
func (o *Orchestrator) executeStep(ctx context.Context, taskID string, plan *domain.TaskPlan, index int, taskContext string) int {
	step := &plan.Steps[index]

	// Step fields are written under the mutex; Plan snapshots read them
	// concurrently while the task is in flight.
	now := time.Now()
	o.mu.Lock()
	step.Status = domain.StepStatusRunning
	step.StartedAt = &now
	o.mu.Unlock()

	systemPrompt, ok := roleSystemPrompts[step.AssignedAgent]
	if !ok {
		systemPrompt = roleSystemPrompts[domain.AgentRoleAutomation]
	}

	userPrompt := fmt.Sprintf("Task: %s\n\nYour step: %s", plan.OriginalTask, step.Description)
	if taskContext != "" {
		userPrompt += "\n\nContext:\n" + taskContext
	}

	tokens := 0
	for attempt := 1; attempt <= stepMaxAttempts; attempt++ {
		completion, err := o.llm.Complete(ctx, &llm.Request{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
		})
		if err != nil {
			o.logger.Warn("Step execution failed",
				slog.String("task_id", taskID),
				slog.Int("step", step.StepNumber),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			continue
		}

		tokens += completion.TotalTokens()
		finished := time.Now()
		o.mu.Lock()
		step.Result = completion.Content
		step.Status = domain.StepStatusCompleted
		step.CompletedAt = &finished
		o.mu.Unlock()
		return tokens
	}

	finished := time.Now()
	o.mu.Lock()
	step.Status = domain.StepStatusFailed
	step.CompletedAt = &finished
	o.mu.Unlock()
	return tokens
}

// aggregate produces the final answer from the completed steps and returns
// it with the tokens the aggregation consumed.
func (o *Orchestrator) aggregate(ctx context.Context, taskID, task string, completed []domain.PlanStep) (string, int) {
	// A single completed step is the final result verbatim.
	if len(completed) == 1 {
		return completed[0].Result, 0
	}

	var sb strings.Builder
	for _, step := range completed {
		fmt.Fprintf(&sb, "Step %d (%s):\n%s\n\n", step.StepNumber, step.AssignedAgent, step.Result)
	}

	completion, err := o.llm.Complete(ctx, &llm.Request{
		SystemPrompt: aggregationSystemPrompt,
		UserPrompt:   fmt.Sprintf("Task: %s\n\nStep outputs:\n%s", task, sb.String()),
	})
	if err != nil {
		o.logger.Warn("Aggregation call failed, concatenating step results",
			slog.String("task_id", taskID),
			slog.Any("error", err),
		)
		return strings.TrimSpace(sb.String()), 0
	}

	return completion.Content, completion.TotalTokens()
}

func (o *Orchestrator) setStatus(taskID, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[taskID] = status
}
