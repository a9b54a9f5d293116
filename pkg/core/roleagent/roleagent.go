// Package roleagent implements the Role Agent: one role-agnostic
// implementation parameterized by an AgentConfig and a role system prompt,
// replacing the teacher's one-struct-per-persona approach with a single
// type driven by data (the pattern the teacher itself partially reached for
// with UniversalAgent, generalized the rest of the way).
package roleagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/summarize"
	"github.com/slior/dialectic/pkg/core/utils"
)

// summarizationInstruction is the persona-independent instruction sent
// alongside the agent's own SystemPrompt when C2 calls out to compress an
// agent's accumulated contributions.
const summarizationInstruction = "Compress your own prior contributions to this debate into a concise summary " +
	"of at most %d characters, preserving the substance of your position and the critiques you addressed. " +
	"Respond with the summary text only, no preamble."

const defaultMaxToolIterations = 8

// ToolExecutor runs a tool call a provider requested and returns its result.
// Defined here (the consumer) rather than in llm, so a caller can wire in
// whatever tool implementations the debate needs without llm depending on
// them.
type ToolExecutor interface {
	Execute(ctx context.Context, call model.ToolCall) (model.ToolResult, error)
}

// RoleAgent is one debate participant. It holds no mutable debate state
// beyond its own running character count (used to trigger summarization);
// everything about the debate itself is passed in per call via
// model.DebateContext.
type RoleAgent struct {
	Config       model.AgentConfig
	Provider     llm.Provider
	SystemPrompt string
	Tools        []llm.Tool
	ToolExecutor ToolExecutor

	MaxToolIterations int

	ownContentChars int
}

// New builds a RoleAgent. ToolExecutor may be nil if the agent never calls
// tools.
func New(cfg model.AgentConfig, provider llm.Provider, systemPrompt string, tools []llm.Tool, executor ToolExecutor) *RoleAgent {
	return &RoleAgent{
		Config:            cfg,
		Provider:          provider,
		SystemPrompt:      systemPrompt,
		Tools:             tools,
		ToolExecutor:      executor,
		MaxToolIterations: defaultMaxToolIterations,
	}
}

// AgentID returns the id this agent's contributions are attributed to.
func (a *RoleAgent) AgentID() string { return a.Config.ID }

// Role returns the perspective this agent argues from.
func (a *RoleAgent) Role() model.AgentRole { return a.Config.Role }

// ShouldSummarize reports whether this agent's own accumulated proposal and
// refinement content (never critiques it received, even though critiques
// are part of what PrepareContext feeds into the next call) has crossed
// cfg's threshold.
func (a *RoleAgent) ShouldSummarize(cfg *model.SummarizationConfig) bool {
	return summarize.ShouldSummarize(cfg, a.ownContentChars)
}

// Summarize calls this agent's provider to compress its own accumulated
// content and resets the running counter to the length of the produced
// summary, so future ShouldSummarize checks measure growth since the last
// compression. On a provider error it returns the error unchanged and
// leaves the running counter untouched, letting the caller fall back to
// full history for this call.
func (a *RoleAgent) Summarize(ctx context.Context, accumulated string, cfg model.SummarizationConfig) (model.DebateSummary, error) {
	s, err := summarize.BuildSummary(ctx, a.Config.ID, summarize.Request{
		Content:      accumulated,
		Role:         a.Config.Role,
		Cfg:          cfg,
		Provider:     a.Provider,
		SystemPrompt: a.SystemPrompt,
		UserPrompt:   fmt.Sprintf(summarizationInstruction, cfg.MaxLength) + "\n\n" + accumulated,
		ModelName:    a.Config.Model,
		ProviderName: string(a.Config.Provider),
		Temperature:  a.Config.Temperature,
	})
	if err != nil {
		return model.DebateSummary{}, err
	}
	a.ownContentChars = len(s.Summary)
	return s, nil
}

// PrepareContext is called by the orchestrator immediately before each agent
// call. If ShouldSummarize is false it returns dctx unchanged with a nil
// summary. Otherwise it concatenates this agent's relevant contributions —
// its own proposals and refinements, plus critiques it received, across
// dctx.History — summarizes them via C2, and returns dctx with Summary set
// alongside the produced DebateSummary (the orchestrator persists it and
// emits the Summarization* hooks; this method has no side effects of its
// own beyond resetting the running character count). On a summarization
// error it logs a warning and returns dctx unchanged with a nil summary,
// the same fallback-to-full-history behavior as never having triggered.
func (a *RoleAgent) PrepareContext(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary) {
	if !a.ShouldSummarize(cfg) {
		return dctx, nil
	}

	accumulated := a.relevantContributions(dctx.History)
	summary, err := a.Summarize(ctx, accumulated, *cfg)
	if err != nil {
		fmt.Printf("[roleagent] summarization failed for %s, falling back to full history: %v\n", a.Config.ID, err)
		return dctx, nil
	}
	dctx.Summary = &summary
	return dctx, &summary
}

// relevantContributions concatenates this agent's own proposals and
// refinements with critiques targeting it — the input set the spec requires
// summarization to draw from, which is a superset of what ShouldSummarize's
// character count actually triggers on (proposals+refinements only).
func (a *RoleAgent) relevantContributions(history []model.DebateRound) string {
	var sb strings.Builder
	for _, r := range history {
		for _, c := range r.Contributions {
			switch {
			case c.AgentID == a.Config.ID && (c.Type == model.ContributionProposal || c.Type == model.ContributionRefinement):
				sb.WriteString(c.Content)
				sb.WriteString("\n")
			case c.Type == model.ContributionCritique && c.TargetAgentID == a.Config.ID:
				sb.WriteString(c.Content)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// historyText renders the text an agent sees of the debate so far: full
// history when dctx.IncludeFullHistory is true or no summary is present,
// otherwise the summary PrepareContext produced plus the latest round's raw
// contributions (never itself summarized away).
func (a *RoleAgent) historyText(dctx model.DebateContext) string {
	if dctx.IncludeFullHistory || dctx.Summary == nil {
		return renderFullHistory(dctx.History)
	}

	var sb strings.Builder
	sb.WriteString("## Your prior summary\n")
	sb.WriteString(dctx.Summary.Summary)
	sb.WriteString("\n\n## Most recent round\n")
	if n := len(dctx.History); n > 0 {
		sb.WriteString(renderRound(dctx.History[n-1]))
	}
	return sb.String()
}

func renderFullHistory(rounds []model.DebateRound) string {
	var sb strings.Builder
	for _, r := range rounds {
		sb.WriteString(renderRound(r))
	}
	return sb.String()
}

func renderRound(r model.DebateRound) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Round %d\n", r.RoundNumber)
	for _, c := range r.Contributions {
		fmt.Fprintf(&sb, "**%s (%s, %s)**: %s\n\n", c.AgentID, c.AgentRole, c.Type, c.Content)
	}
	return sb.String()
}

// Propose generates this agent's opening position for the current round.
func (a *RoleAgent) Propose(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
	user := fmt.Sprintf("Problem:\n%s\n\n", dctx.Problem)
	if dctx.Context != "" {
		user += fmt.Sprintf("Additional context:\n%s\n\n", dctx.Context)
	}
	if history := a.historyText(dctx); history != "" {
		user += fmt.Sprintf("Debate so far:\n%s\n\n", history)
	}
	user += "Propose your solution to this problem from your role's perspective."

	return a.call(ctx, model.ContributionProposal, "", user)
}

// Critique generates this agent's critique of a single target contribution.
// The returned Contribution's TargetAgentID is left empty: the orchestrator
// sets it, since pairing critic to target is the orchestrator's scheduling
// decision, not something the agent itself should assert.
func (a *RoleAgent) Critique(ctx context.Context, dctx model.DebateContext, target model.Contribution) (model.Contribution, error) {
	user := fmt.Sprintf("Problem:\n%s\n\n", dctx.Problem)
	user += fmt.Sprintf("Critique the following proposal from %s (%s):\n%s\n\n", target.AgentID, target.AgentRole, target.Content)
	user += "Identify concrete weaknesses, risks, or gaps from your role's perspective. Be specific."

	return a.call(ctx, model.ContributionCritique, "", user)
}

// Refine generates this agent's revised position given the critiques it
// received on its own most recent proposal.
func (a *RoleAgent) Refine(ctx context.Context, dctx model.DebateContext, ownPrior model.Contribution, critiques []model.Contribution) (model.Contribution, error) {
	user := fmt.Sprintf("Problem:\n%s\n\n", dctx.Problem)
	user += fmt.Sprintf("Your prior proposal:\n%s\n\n", ownPrior.Content)
	user += "Critiques you received:\n"
	for _, c := range critiques {
		user += fmt.Sprintf("- from %s (%s): %s\n", c.AgentID, c.AgentRole, c.Content)
	}
	user += "\nRefine your proposal, addressing the critiques you find valid and defending points you don't."

	return a.call(ctx, model.ContributionRefinement, "", user)
}

// AskClarifyingQuestions asks the agent for up to max questions about the
// problem before round 1 begins. Agents that have nothing to ask return an
// empty slice, not an error.
func (a *RoleAgent) AskClarifyingQuestions(ctx context.Context, problem string, max int) ([]model.ClarificationItem, error) {
	user := fmt.Sprintf("Problem:\n%s\n\nList up to %d clarifying questions you would want answered before proposing a solution. "+
		"One per line, no numbering. If you have none, respond with an empty line.", problem, max)

	result, err := a.completeWithTools(ctx, llm.CompletionRequest{
		Model:        a.Config.Model,
		SystemPrompt: a.SystemPrompt,
		UserPrompt:   user,
		Temperature:  a.Config.Temperature,
	})
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(result.Text), "\n")
	items := make([]model.ClarificationItem, 0, max)
	for i, line := range lines {
		q := strings.TrimSpace(line)
		if q == "" {
			continue
		}
		if len(items) >= max {
			break
		}
		items = append(items, model.ClarificationItem{
			ID:       fmt.Sprintf("%s-q%d", a.Config.ID, i+1),
			Question: q,
		})
	}
	return items, nil
}

func (a *RoleAgent) call(ctx context.Context, typ model.ContributionType, targetAgentID, userPrompt string) (model.Contribution, error) {
	start := time.Now()

	result, err := a.completeWithTools(ctx, llm.CompletionRequest{
		Model:        a.Config.Model,
		SystemPrompt: a.SystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  a.Config.Temperature,
		Tools:        a.Tools,
	})
	if err != nil {
		return model.Contribution{}, debateerr.New(debateerr.ProviderError, "roleagent.call", err)
	}

	latency := time.Since(start)
	content := utils.CleanMarkdown(result.Text)
	if typ == model.ContributionProposal || typ == model.ContributionRefinement {
		a.ownContentChars += len(content)
	}

	return model.Contribution{
		AgentID:       a.Config.ID,
		AgentRole:     a.Config.Role,
		Type:          typ,
		Content:       content,
		TargetAgentID: targetAgentID,
		Metadata: model.ContributionMetadata{
			LatencyMs:  latency.Milliseconds(),
			TokensUsed: usageTotal(result.Usage),
			Model:      a.Config.Model,
		},
	}, nil
}

// completeWithTools runs the provider call, following up on any requested
// tool calls until the model stops asking for one or MaxToolIterations is
// hit, whichever comes first. Hitting the cap returns whatever text the
// model produced on its last turn rather than erroring, since a debate
// contribution with no further tool output is still a usable contribution.
func (a *RoleAgent) completeWithTools(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	maxIter := a.MaxToolIterations
	if maxIter <= 0 {
		maxIter = defaultMaxToolIterations
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: req.UserPrompt}}

	var last llm.CompletionResult
	for i := 0; i < maxIter; i++ {
		callReq := req
		callReq.Messages = messages
		callReq.UserPrompt = ""

		result, err := a.Provider.Complete(ctx, callReq)
		if err != nil {
			return llm.CompletionResult{}, err
		}
		last = result

		if len(result.ToolCalls) == 0 || a.ToolExecutor == nil {
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: result.Text, ToolCalls: result.ToolCalls})

		var toolResults []llm.ToolResult
		for _, tc := range result.ToolCalls {
			select {
			case <-ctx.Done():
				return llm.CompletionResult{}, ctx.Err()
			default:
			}
			tr, err := a.ToolExecutor.Execute(ctx, model.ToolCall{ID: tc.ID, Name: tc.Name, ArgumentsJSON: tc.ArgumentsJSON})
			if err != nil {
				tr = model.ToolResult{ToolCallID: tc.ID, Content: err.Error(), IsError: true}
			}
			toolResults = append(toolResults, llm.ToolResult{ToolCallID: tr.ToolCallID, Content: tr.Content, IsError: tr.IsError})
		}
		messages = append(messages, llm.Message{Role: llm.RoleTool, ToolResults: toolResults})
	}

	return last, nil
}

func usageTotal(u *llm.Usage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
