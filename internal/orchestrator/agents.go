package orchestrator

import (
	"strings"

	"github.com/cuongbtq/agent-core/internal/domain"
)

// roleSystemPrompts gives each worker role its execution persona.
var roleSystemPrompts = map[domain.AgentRole]string{
	domain.AgentRoleCode:       "You are an expert software engineer. Produce working, idiomatic code and explain key decisions briefly.",
	domain.AgentRoleResearch:   "You are a thorough researcher. Gather the relevant facts, cite what you rely on, and summarize findings clearly.",
	domain.AgentRoleWriting:    "You are a professional writer. Produce clear, well-structured prose matched to the requested audience and tone.",
	domain.AgentRoleSecurity:   "You are a security analyst. Identify risks, rate their severity, and recommend concrete mitigations.",
	domain.AgentRoleBusiness:   "You are a business strategist. Evaluate costs, benefits and trade-offs, and give an actionable recommendation.",
	domain.AgentRoleAutomation: "You are an automation engineer. Design reliable, repeatable processes and describe each step precisely.",
}

// keywordRules maps task-text keywords to roles. Rules are checked in slice
// order so the fallback stays deterministic for a given input.
var keywordRules = []struct {
	role     domain.AgentRole
	keywords []string
}{
	{domain.AgentRoleResearch, []string{"research", "investigate", "find out", "compare", "analyze"}},
	{domain.AgentRoleCode, []string{"code", "implement", "function", "bug", "refactor", "script", "api"}},
	{domain.AgentRoleSecurity, []string{"security", "vulnerability", "exploit", "audit", "penetration"}},
	{domain.AgentRoleWriting, []string{"write", "draft", "blog", "article", "summarize", "document"}},
	{domain.AgentRoleBusiness, []string{"business", "market", "revenue", "pricing", "strategy"}},
	{domain.AgentRoleAutomation, []string{"automate", "schedule", "pipeline", "workflow", "deploy"}},
}

// fallbackRole picks a worker role for a task by keyword matching. Used when
// the planning call fails or returns an unparseable plan; the same text
// always yields the same role.
func fallbackRole(task string) domain.AgentRole {
	lowered := strings.ToLower(task)

	for _, rule := range keywordRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule.role
			}
		}
	}

	return domain.AgentRoleAutomation
}
