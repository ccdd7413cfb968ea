package domain

import "time"

// AgentRole is the fixed enumeration of worker roles a plan step can be
// assigned to.
type AgentRole string

const (
	AgentRoleCode       AgentRole = "code"
	AgentRoleResearch   AgentRole = "research"
	AgentRoleWriting    AgentRole = "writing"
	AgentRoleSecurity   AgentRole = "security"
	AgentRoleBusiness   AgentRole = "business"
	AgentRoleAutomation AgentRole = "automation"
)

// AgentRoles lists every valid role in a fixed order.
var AgentRoles = []AgentRole{
	AgentRoleCode,
	AgentRoleResearch,
	AgentRoleWriting,
	AgentRoleSecurity,
	AgentRoleBusiness,
	AgentRoleAutomation,
}

// Valid reports whether the role is one of the known enumeration values.
func (r AgentRole) Valid() bool {
	for _, known := range AgentRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Plan step status constants
const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// Task status constants (orchestrator path)
const (
	TaskStatusPending   = "PENDING"
	TaskStatusRunning   = "RUNNING"
	TaskStatusCompleted = "COMPLETED"
	TaskStatusFailed    = "FAILED"
)

// PlanStep is one ordered unit of work inside a TaskPlan. Dependencies are
// recorded for visibility but steps always run in list order.
type PlanStep struct {
	StepNumber    int        `json:"step_number"`
	Description   string     `json:"description"`
	AssignedAgent AgentRole  `json:"assigned_agent"`
	Dependencies  []int      `json:"dependencies,omitempty"`
	Status        string     `json:"status"`
	Result        string     `json:"result,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TaskPlan is the orchestrator's in-memory decomposition of a submitted
// task. It is never persisted.
type TaskPlan struct {
	TaskID            string     `json:"task_id"`
	OriginalTask      string     `json:"original_task"`
	Steps             []PlanStep `json:"steps"`
	EstimatedDuration string     `json:"estimated_duration,omitempty"`
	EstimatedCost     float64    `json:"estimated_cost,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Clone returns a deep copy of the plan. Step slices and timestamp pointers
// are copied so the clone can be read without synchronizing with the
// goroutine still executing the plan.
func (p *TaskPlan) Clone() *TaskPlan {
	if p == nil {
		return nil
	}

	copied := *p
	copied.Steps = make([]PlanStep, len(p.Steps))
	for i, step := range p.Steps {
		copied.Steps[i] = step
		if step.Dependencies != nil {
			copied.Steps[i].Dependencies = append([]int(nil), step.Dependencies...)
		}
		if step.StartedAt != nil {
			started := *step.StartedAt
			copied.Steps[i].StartedAt = &started
		}
		if step.CompletedAt != nil {
			completed := *step.CompletedAt
			copied.Steps[i].CompletedAt = &completed
		}
	}
	return &copied
}

// TaskResult is the terminal outcome of an orchestrator task, including the
// per-step trace and token/cost totals across planning, execution and
// aggregation.
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Status      string        `json:"status"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Steps       []PlanStep    `json:"steps"`
	TotalTokens int           `json:"total_tokens"`
	CostUSD     float64       `json:"cost_usd"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
