package roleagent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
)

func newTestAgent(provider llm.Provider) *RoleAgent {
	cfg := model.AgentConfig{ID: "a1", Name: "Agent One", Role: model.RoleArchitect, Model: "mock-model", Temperature: 0.3}
	return New(cfg, provider, "system prompt", nil, nil)
}

func TestProposeReturnsContributionWithMetadata(t *testing.T) {
	mock := &llm.MockProvider{Reply: "my proposal"}
	a := newTestAgent(mock)

	c, err := a.Propose(context.Background(), model.DebateContext{Problem: "solve X", IncludeFullHistory: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Type != model.ContributionProposal {
		t.Fatalf("expected proposal type, got %s", c.Type)
	}
	if c.Content != "my proposal" {
		t.Fatalf("expected mock reply as content, got %q", c.Content)
	}
	if c.AgentID != "a1" || c.AgentRole != model.RoleArchitect {
		t.Fatalf("unexpected agent identity on contribution: %+v", c)
	}
	if c.Metadata.Model != "mock-model" {
		t.Fatalf("expected model recorded in metadata, got %q", c.Metadata.Model)
	}
}

func TestShouldSummarizeTracksOwnContentOnly(t *testing.T) {
	mock := &llm.MockProvider{Reply: "0123456789"} // 10 chars
	a := newTestAgent(mock)
	cfg := &model.SummarizationConfig{Enabled: true, Threshold: 15, MaxLength: 100}

	if a.ShouldSummarize(cfg) {
		t.Fatal("should not trigger before any calls")
	}
	if _, err := a.Propose(context.Background(), model.DebateContext{Problem: "p", IncludeFullHistory: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ShouldSummarize(cfg) {
		t.Fatal("should not trigger after a single 10-char proposal against a 15-char threshold")
	}
	if _, err := a.Critique(context.Background(), model.DebateContext{Problem: "p"}, model.Contribution{AgentID: "other", Content: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ShouldSummarize(cfg) {
		t.Fatal("critiques delivered by this agent must not count toward its own summarization trigger")
	}
}

func TestCompleteWithToolsStopsAtMaxIterations(t *testing.T) {
	calls := 0
	mock := &llm.MockProvider{
		ReplyFunc: func(req llm.CompletionRequest) (llm.CompletionResult, error) {
			calls++
			return llm.CompletionResult{
				Text:      "thinking...",
				ToolCalls: []llm.ToolCall{{ID: "t1", Name: "noop", ArgumentsJSON: "{}"}},
			}, nil
		},
	}
	a := newTestAgent(mock)
	a.MaxToolIterations = 3
	a.ToolExecutor = fakeExecutor{}

	_, err := a.Propose(context.Background(), model.DebateContext{Problem: "p", IncludeFullHistory: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly MaxToolIterations calls, got %d", calls)
	}
}

func TestPrepareContextSummarizesOnlyPastThreshold(t *testing.T) {
	mock := &llm.MockProvider{Reply: strings.Repeat("x", 20)}
	a := newTestAgent(mock)
	cfg := &model.SummarizationConfig{Enabled: true, Threshold: 15, MaxLength: 5}

	dctx := model.DebateContext{Problem: "p", History: []model.DebateRound{
		{RoundNumber: 1, Contributions: []model.Contribution{{AgentID: "a1", Type: model.ContributionProposal, Content: strings.Repeat("x", 20)}}},
	}}

	out, summary := a.PrepareContext(context.Background(), dctx, cfg)
	if summary != nil {
		t.Fatal("expected no summary before ShouldSummarize crosses threshold")
	}
	if out.Summary != nil {
		t.Fatal("expected dctx unchanged when no summarization occurs")
	}

	if _, err := a.Propose(context.Background(), model.DebateContext{Problem: "p", IncludeFullHistory: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, summary = a.PrepareContext(context.Background(), dctx, cfg)
	if summary == nil {
		t.Fatal("expected a summary once the threshold is crossed")
	}
	if len(summary.Summary) > cfg.MaxLength {
		t.Fatalf("expected summary truncated to maxLength, got %d chars", len(summary.Summary))
	}
	if out.Summary != summary {
		t.Fatal("expected returned dctx.Summary to be the produced summary")
	}
}

func TestPrepareContextCallsProviderAndFallsBackOnError(t *testing.T) {
	mock := &llm.MockProvider{FailOn: func(req llm.CompletionRequest, callIndex int) error { return fmt.Errorf("provider down") }}
	a := newTestAgent(mock)
	cfg := &model.SummarizationConfig{Enabled: true, Threshold: 1, MaxLength: 5}

	a.ownContentChars = 100 // force ShouldSummarize true without a prior Propose call
	dctx := model.DebateContext{Problem: "p"}

	out, summary := a.PrepareContext(context.Background(), dctx, cfg)
	if summary != nil {
		t.Fatal("expected nil summary when the provider call fails")
	}
	if out.Summary != nil {
		t.Fatal("expected dctx unchanged when summarization fails")
	}
}

func TestRefinementCountsTowardSummarizationButCritiqueDoesNot(t *testing.T) {
	mock := &llm.MockProvider{Reply: strings.Repeat("x", 10)}
	a := newTestAgent(mock)
	cfg := &model.SummarizationConfig{Enabled: true, Threshold: 15, MaxLength: 100}

	if _, err := a.Propose(context.Background(), model.DebateContext{Problem: "p", IncludeFullHistory: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ShouldSummarize(cfg) {
		t.Fatal("should not trigger after a single 10-char proposal against a 15-char threshold")
	}
	if _, err := a.Critique(context.Background(), model.DebateContext{Problem: "p"}, model.Contribution{AgentID: "other", Content: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ShouldSummarize(cfg) {
		t.Fatal("a critique this agent authored must not count toward its own summarization trigger")
	}
	if _, err := a.Refine(context.Background(), model.DebateContext{Problem: "p"}, model.Contribution{Content: "prior"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.ShouldSummarize(cfg) {
		t.Fatal("a refinement must count toward the summarization trigger")
	}
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	return model.ToolResult{ToolCallID: call.ID, Content: "ok"}, nil
}
