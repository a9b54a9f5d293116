// Package summarize implements the Context Summarizer: a length-based
// compression policy a Role Agent invokes on its own history once it grows
// past a configured threshold, so later rounds fit in a single prompt.
package summarize

import (
	"context"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
)

const methodLengthBased = "length-based"

// Request bundles what the length-based method needs: the material being
// compressed (for before/after accounting), the provider to call to produce
// the compressed summary, and the prompts/model/temperature to call it with.
type Request struct {
	Content      string
	Role         model.AgentRole
	Cfg          model.SummarizationConfig
	Provider     llm.Provider
	SystemPrompt string
	UserPrompt   string
	ModelName    string
	ProviderName string
	Temperature  float64
}

// Summarize calls req.Provider with the supplied system/user prompts and the
// agent's model/temperature, then truncates the returned summary to at most
// cfg.MaxLength characters from the left (dropping the oldest material,
// keeping the most recent). It records before/after sizes, the method used,
// and the provider's reported token usage and latency.
func Summarize(ctx context.Context, req Request) (string, model.SummaryMetadata, error) {
	before := len(req.Content)
	start := time.Now()

	result, err := req.Provider.Complete(ctx, llm.CompletionRequest{
		Model:        req.ModelName,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  req.Temperature,
	})
	if err != nil {
		return "", model.SummaryMetadata{}, debateerr.New(debateerr.SummarizationError, "summarize.Summarize", err)
	}

	summary := result.Text
	if len(summary) > req.Cfg.MaxLength {
		summary = summary[len(summary)-req.Cfg.MaxLength:]
	}

	return summary, model.SummaryMetadata{
		BeforeChars: before,
		AfterChars:  len(summary),
		Method:      methodLengthBased,
		Timestamp:   now(),
		Model:       req.ModelName,
		Temperature: req.Temperature,
		Provider:    req.ProviderName,
		TokensUsed:  usageTotal(result.Usage),
		LatencyMs:   time.Since(start).Milliseconds(),
	}, nil
}

// ShouldSummarize reports whether accumulatedChars (the agent's own
// proposals and refinements, never its critiques received) has crossed the
// configured threshold. A nil or disabled config never triggers.
func ShouldSummarize(cfg *model.SummarizationConfig, accumulatedChars int) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}
	return accumulatedChars >= cfg.Threshold
}

// now is a seam so tests can freeze the clock; production code always uses
// the wall clock.
var now = time.Now

func usageTotal(u *llm.Usage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}

// BuildSummary wraps Summarize's result in a model.DebateSummary for the
// given agent/role, the shape the State Store and orchestrator consume. On
// provider error it returns a zero-value summary alongside the error,
// letting the caller fall back to unsummarized history per the
// SummarizationError policy instead of failing the debate.
func BuildSummary(ctx context.Context, agentID string, req Request) (model.DebateSummary, error) {
	summary, meta, err := Summarize(ctx, req)
	if err != nil {
		return model.DebateSummary{}, err
	}
	return model.DebateSummary{
		AgentID:   agentID,
		AgentRole: req.Role,
		Summary:   summary,
		Metadata:  meta,
	}, nil
}
