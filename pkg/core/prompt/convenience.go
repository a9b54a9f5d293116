package prompt

import (
	"fmt"

	"github.com/slior/dialectic/pkg/core/model"
)

// Convenience functions for the role-prompt registry used by Role Agents
// and the Judge.

// GetRolePrompt returns a debate agent's system prompt by role.
func GetRolePrompt(r *Registry, role model.AgentRole) (string, error) {
	return r.GetSystemPrompt(roleID(role))
}

// MustGetRolePrompt is like GetRolePrompt but panics on error. Intended for
// startup wiring where a missing default prompt is a configuration bug.
func MustGetRolePrompt(r *Registry, role model.AgentRole) string {
	p, err := GetRolePrompt(r, role)
	if err != nil {
		panic(err)
	}
	return p
}

func roleID(role model.AgentRole) string {
	return fmt.Sprintf("debate.%s", role)
}

// JudgePromptID identifies the judge's synthesis system prompt within a
// Registry built by NewDefaultRolePrompts.
const JudgePromptID = "debate.judge"

// NewDefaultRolePrompts builds a Registry pre-populated with the default
// role system prompts (architect, performance, security, testing,
// generalist) plus the judge's synthesis prompt. Callers needing custom
// personas build their own Registry and Register over these instead of
// mutating a shared instance.
func NewDefaultRolePrompts() *Registry {
	r := NewRegistry()
	for _, pt := range defaultRolePromptTemplates() {
		_ = r.Register(pt)
	}
	return r
}

func defaultRolePromptTemplates() []*PromptTemplate {
	return []*PromptTemplate{
		{
			ID:       roleID(model.RoleArchitect),
			Name:     "Architect",
			Category: "debate",
			SystemPrompt: "You are the Architect in a structured technical debate. You argue for the " +
				"proposal's overall system design, module boundaries, and how it scales and evolves. " +
				"Ground every claim in the problem statement and prior contributions; say explicitly " +
				"when you don't have enough information instead of guessing.",
		},
		{
			ID:       roleID(model.RolePerformance),
			Name:     "Performance",
			Category: "debate",
			SystemPrompt: "You are the Performance reviewer in a structured technical debate. You argue " +
				"from the perspective of latency, throughput, and resource cost. Call out where a " +
				"proposal trades correctness or clarity for speed, or vice versa, and quantify the " +
				"tradeoff when you can.",
		},
		{
			ID:       roleID(model.RoleSecurity),
			Name:     "Security",
			Category: "debate",
			SystemPrompt: "You are the Security reviewer in a structured technical debate. You argue from " +
				"the perspective of attack surface, data handling, and failure modes an adversary could " +
				"exploit. Be specific about the threat, not generic about 'best practices'.",
		},
		{
			ID:       roleID(model.RoleTesting),
			Name:     "Testing",
			Category: "debate",
			SystemPrompt: "You are the Testing reviewer in a structured technical debate. You argue from " +
				"the perspective of verifiability: what would have to be true for this proposal to be " +
				"confidently shippable, and what edge cases the other agents' proposals have missed.",
		},
		{
			ID:       roleID(model.RoleGeneralist),
			Name:     "Generalist",
			Category: "debate",
			SystemPrompt: "You are the Generalist in a structured technical debate. You argue from the " +
				"perspective of the team and user impact that the specialist roles tend to skip: " +
				"onboarding cost, operational burden, and whether the proposal actually solves the " +
				"stated problem.",
		},
		{
			ID:       JudgePromptID,
			Name:     "Judge",
			Category: "debate",
			SystemPrompt: "You are the Judge synthesizing a structured technical debate into a single " +
				"recommended solution. Respond with a single JSON object only, matching the requested " +
				"schema exactly. Call out any major requirement the debate left unfulfilled and any " +
				"question still open; never inflate confidence past what the contributions support.",
		},
	}
}
