// Package handlers contains the built-in job handlers. The set is closed:
// every handler is registered once at process start and unknown job types
// fail fast at claim time.
package handlers

import (
	"github.com/cuongbtq/agent-core/internal/llm"
	"github.com/cuongbtq/agent-core/internal/worker"
)

// Job type names
const (
	TypeSimpleTask       = "simple-task"
	TypeCodeGeneration   = "code-generation"
	TypeReportGeneration = "report-generation"
)

// Types lists every built-in job type, for submission-time validation.
func Types() []string {
	return []string{TypeSimpleTask, TypeCodeGeneration, TypeReportGeneration}
}

// RegisterAll wires every built-in handler into the registry.
func RegisterAll(registry *worker.Registry, llmClient *llm.Client) error {
	if err := registry.Register(TypeSimpleTask, SimpleTask); err != nil {
		return err
	}
	if err := registry.Register(TypeCodeGeneration, CodeGeneration); err != nil {
		return err
	}

	reports := NewReportGeneration(llmClient)
	return registry.Register(TypeReportGeneration, reports.Handle)
}
