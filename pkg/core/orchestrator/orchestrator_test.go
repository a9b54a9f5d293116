package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/hooks"
	"github.com/slior/dialectic/pkg/core/model"
)

// fakeAgent is a test double for Agent. Every method delegates to an
// optional func field, falling back to a deterministic default.
type fakeAgent struct {
	id   string
	role model.AgentRole

	proposeFunc  func(ctx context.Context, dctx model.DebateContext) (model.Contribution, error)
	critiqueFunc func(ctx context.Context, dctx model.DebateContext, target model.Contribution) (model.Contribution, error)
	refineFunc   func(ctx context.Context, dctx model.DebateContext, own model.Contribution, critiques []model.Contribution) (model.Contribution, error)
	prepareFunc  func(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary)
}

func (a *fakeAgent) AgentID() string        { return a.id }
func (a *fakeAgent) Role() model.AgentRole { return a.role }

func (a *fakeAgent) Propose(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
	if a.proposeFunc != nil {
		return a.proposeFunc(ctx, dctx)
	}
	return model.Contribution{AgentID: a.id, AgentRole: a.role, Type: model.ContributionProposal, Content: a.id + "-proposal"}, nil
}

func (a *fakeAgent) Critique(ctx context.Context, dctx model.DebateContext, target model.Contribution) (model.Contribution, error) {
	if a.critiqueFunc != nil {
		return a.critiqueFunc(ctx, dctx, target)
	}
	return model.Contribution{AgentID: a.id, AgentRole: a.role, Type: model.ContributionCritique, Content: a.id + "-critiques-" + target.AgentID}, nil
}

func (a *fakeAgent) Refine(ctx context.Context, dctx model.DebateContext, own model.Contribution, critiques []model.Contribution) (model.Contribution, error) {
	if a.refineFunc != nil {
		return a.refineFunc(ctx, dctx, own, critiques)
	}
	return model.Contribution{AgentID: a.id, AgentRole: a.role, Type: model.ContributionRefinement, Content: a.id + "-refinement"}, nil
}

func (a *fakeAgent) PrepareContext(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary) {
	if a.prepareFunc != nil {
		return a.prepareFunc(ctx, dctx, cfg)
	}
	return dctx, nil
}

// fakeJudge is a test double for Judge.
type fakeJudge struct {
	synthesizeFunc func(ctx context.Context, cfg model.DebateConfig, rounds []model.DebateRound, problem string) model.Solution
}

func (j *fakeJudge) Synthesize(ctx context.Context, cfg model.DebateConfig, rounds []model.DebateRound, problem string) model.Solution {
	if j.synthesizeFunc != nil {
		return j.synthesizeFunc(ctx, cfg, rounds, problem)
	}
	return model.Solution{Description: "synthesized", Confidence: 70, SynthesizedBy: "judge"}
}

// fakeStore is an in-memory test double for Store, safe for concurrent use.
type fakeStore struct {
	mu         sync.Mutex
	state      *model.DebateState
	failCalled bool
}

func (s *fakeStore) CreateDebate(id, problem, context string, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &model.DebateState{ID: id, Problem: problem, Context: context, Status: model.StatusRunning, CreatedAt: now, UpdatedAt: now}
	return s.state, nil
}

func (s *fakeStore) BeginRound(id string, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Rounds = append(s.state.Rounds, model.DebateRound{RoundNumber: len(s.state.Rounds) + 1, Timestamp: now})
	s.state.CurrentRound = len(s.state.Rounds)
	s.state.UpdatedAt = now
	return s.state, nil
}

func (s *fakeStore) AddContribution(id string, c model.Contribution, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.state.Rounds) - 1
	s.state.Rounds[i].Contributions = append(s.state.Rounds[i].Contributions, c)
	s.state.UpdatedAt = now
	return s.state, nil
}

func (s *fakeStore) AddSummary(id string, summary model.DebateSummary, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.state.Rounds) - 1
	if s.state.Rounds[i].Summaries == nil {
		s.state.Rounds[i].Summaries = make(map[string]*model.DebateSummary)
	}
	sc := summary
	s.state.Rounds[i].Summaries[summary.AgentID] = &sc
	s.state.UpdatedAt = now
	return s.state, nil
}

func (s *fakeStore) CompleteDebate(id string, solution model.Solution, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = model.StatusCompleted
	s.state.FinalSolution = &solution
	s.state.UpdatedAt = now
	return s.state, nil
}

func (s *fakeStore) FailDebate(id string, now time.Time) (*model.DebateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCalled = true
	s.state.Status = model.StatusFailed
	s.state.UpdatedAt = now
	return s.state, nil
}

// fakeHookSink records every emitted event in order, safe for concurrent use.
type fakeHookSink struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (h *fakeHookSink) Emit(ev hooks.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *fakeHookSink) byType(t hooks.EventType) []hooks.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hooks.Event
	for _, ev := range h.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func twoAgents() []Agent {
	return []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}
}

func fixedConfig(rounds int) model.DebateConfig {
	return model.DebateConfig{
		Rounds:              rounds,
		TerminationCondition: model.TerminationCondition{Type: model.TerminationFixed},
		SynthesisMethod:     model.SynthesisJudge,
		IncludeFullHistory:  true,
	}
}

func TestRunHappyPathProducesSolutionAndMetadata(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeHookSink{}
	o := New(store, sink)
	o.Now = func() time.Time { return time.Unix(0, 0) }

	result, err := o.Run(context.Background(), "d1", "solve X", "", twoAgents(), &fakeJudge{}, fixedConfig(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DebateID != "d1" {
		t.Fatalf("expected debate id echoed back, got %q", result.DebateID)
	}
	if result.Metadata.TotalRounds != 2 {
		t.Fatalf("expected 2 rounds recorded, got %d", result.Metadata.TotalRounds)
	}
	if len(result.Rounds) != 2 {
		t.Fatalf("expected 2 persisted rounds, got %d", len(result.Rounds))
	}
	for i, r := range result.Rounds {
		if r.RoundNumber != i+1 {
			t.Fatalf("expected round %d to have roundNumber %d, got %d", i, i+1, r.RoundNumber)
		}
	}
	if result.Solution.Description != "synthesized" {
		t.Fatalf("expected judge's solution to be returned, got %+v", result.Solution)
	}
	if store.state.Status != model.StatusCompleted {
		t.Fatalf("expected store to record completion, got %s", store.state.Status)
	}
}

// TestRunSetsCritiqueTargetAgentIDInvariant mirrors the quantified property
// that every critique's targetAgentId is set and differs from its own
// agentId.
func TestRunSetsCritiqueTargetAgentIDInvariant(t *testing.T) {
	store := &fakeStore{}
	o := New(store, nil)

	_, err := o.Run(context.Background(), "d2", "solve X", "", twoAgents(), &fakeJudge{}, fixedConfig(1), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var critiques []model.Contribution
	for _, c := range store.state.Rounds[0].Contributions {
		if c.Type == model.ContributionCritique {
			critiques = append(critiques, c)
		}
	}
	if len(critiques) != 2 {
		t.Fatalf("expected 2 critiques (2 agents, no self-critique), got %d", len(critiques))
	}
	for _, c := range critiques {
		if c.TargetAgentID == "" {
			t.Fatalf("expected targetAgentId set on every critique, got %+v", c)
		}
		if c.TargetAgentID == c.AgentID {
			t.Fatalf("critique must not target its own author, got %+v", c)
		}
	}
	// lexicographic (critic, target) persist order: a1->a2 before a2->a1.
	if critiques[0].AgentID != "a1" || critiques[0].TargetAgentID != "a2" {
		t.Fatalf("expected first persisted critique to be a1->a2, got %+v", critiques[0])
	}
	if critiques[1].AgentID != "a2" || critiques[1].TargetAgentID != "a1" {
		t.Fatalf("expected second persisted critique to be a2->a1, got %+v", critiques[1])
	}
}

// TestRunCarriesRefinementForwardAsNextRoundProposal mirrors the quantified
// property that round r+1's proposal for agent a equals round r's
// refinement content for a, with tokensUsed and latencyMs zeroed.
func TestRunCarriesRefinementForwardAsNextRoundProposal(t *testing.T) {
	store := &fakeStore{}
	o := New(store, nil)

	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect, refineFunc: func(ctx context.Context, dctx model.DebateContext, own model.Contribution, critiques []model.Contribution) (model.Contribution, error) {
			return model.Contribution{
				AgentID: "a1", AgentRole: model.RoleArchitect, Type: model.ContributionRefinement,
				Content:  "a1-final-refinement",
				Metadata: model.ContributionMetadata{TokensUsed: 42, LatencyMs: 99, Model: "mock-model"},
			}, nil
		}},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}

	_, err := o.Run(context.Background(), "d3", "solve X", "", agents, &fakeJudge{}, fixedConfig(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var round2Proposal model.Contribution
	found := false
	for _, c := range store.state.Rounds[1].Contributions {
		if c.AgentID == "a1" && c.Type == model.ContributionProposal {
			round2Proposal = c
			found = true
		}
	}
	if !found {
		t.Fatal("expected a round-2 proposal carried forward for a1")
	}
	if round2Proposal.Content != "a1-final-refinement" {
		t.Fatalf("expected carried-forward content to equal round-1 refinement, got %q", round2Proposal.Content)
	}
	if round2Proposal.Metadata.TokensUsed != 0 || round2Proposal.Metadata.LatencyMs != 0 {
		t.Fatalf("expected carried-forward metadata zeroed, got %+v", round2Proposal.Metadata)
	}
	if round2Proposal.TargetAgentID != "" {
		t.Fatalf("expected carried-forward proposal to have no targetAgentId, got %q", round2Proposal.TargetAgentID)
	}
}

// TestRunFallsBackToFreshProposeWhenRefinementMissing covers the edge case
// where an agent has no round-(r-1) refinement on record (e.g. it failed to
// persist) and the orchestrator must fall back to a fresh Propose call with
// a warning rather than carrying forward nothing.
func TestRunFallsBackToFreshProposeWhenRefinementMissing(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeHookSink{}
	o := New(store, sink)

	proposeCalls := 0
	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect, proposeFunc: func(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
			proposeCalls++
			return model.Contribution{AgentID: "a1", AgentRole: model.RoleArchitect, Type: model.ContributionProposal, Content: "fresh"}, nil
		}, refineFunc: func(ctx context.Context, dctx model.DebateContext, own model.Contribution, critiques []model.Contribution) (model.Contribution, error) {
			return model.Contribution{}, nil // empty content, simulating a refinement that never got persisted meaningfully
		}},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}

	_, err := o.Run(context.Background(), "d4", "solve X", "", agents, &fakeJudge{}, fixedConfig(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposeCalls != 2 {
		t.Fatalf("expected Propose called once per round (2 rounds), got %d", proposeCalls)
	}

	warnings := 0
	for _, ev := range sink.byType(hooks.EventAgentStart) {
		if ev.AgentID == "a1" && ev.Round == 2 && ev.Detail != "" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one fallback warning on a1's round-2 AgentStart, got %d", warnings)
	}
}

// TestRunClassifiesPerRoundTimeout mirrors the scenario where a slow agent
// exceeds a short timeoutPerRound: the run must fail with TimeoutError and
// the store must be told the debate failed.
func TestRunClassifiesPerRoundTimeout(t *testing.T) {
	store := &fakeStore{}
	o := New(store, nil)

	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect, proposeFunc: func(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
			select {
			case <-time.After(100 * time.Millisecond):
				return model.Contribution{AgentID: "a1", Type: model.ContributionProposal, Content: "too slow"}, nil
			case <-ctx.Done():
				return model.Contribution{}, ctx.Err()
			}
		}},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}

	cfg := fixedConfig(1)
	cfg.TimeoutPerRound = time.Millisecond

	_, err := o.Run(context.Background(), "d5", "solve X", "", agents, &fakeJudge{}, cfg, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if debateerr.KindOf(err) != debateerr.TimeoutError {
		t.Fatalf("expected TimeoutError, got kind %q (%v)", debateerr.KindOf(err), err)
	}
	if !store.failCalled {
		t.Fatal("expected FailDebate to be called after a round error")
	}
}

// TestRunEmitsSummarizationHooksAroundPreparedContext mirrors the
// scenario where an agent's PrepareContext decides to summarize: the
// orchestrator must persist the summary and bracket it with
// SummarizationStart/Complete/End, carrying before/after char counts.
func TestRunEmitsSummarizationHooksAroundPreparedContext(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeHookSink{}
	o := New(store, sink)

	summary := model.DebateSummary{
		AgentID: "a1", AgentRole: model.RoleArchitect, Summary: "short",
		Metadata: model.SummaryMetadata{BeforeChars: 500, AfterChars: 5, Method: "length-based"},
	}
	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect, prepareFunc: func(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary) {
			dctx.Summary = &summary
			return dctx, &summary
		}},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}

	_, err := o.Run(context.Background(), "d6", "solve X", "", agents, &fakeJudge{}, fixedConfig(1), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	starts := sink.byType(hooks.EventSummarizationStart)
	completes := sink.byType(hooks.EventSummarizationComplete)
	ends := sink.byType(hooks.EventSummarizationEnd)
	// a1 goes through PrepareContext once per phase (proposal, critique, refinement) = 3 times.
	if len(starts) != 3 || len(ends) != 3 {
		t.Fatalf("expected 3 summarization start/end pairs (one per phase), got %d/%d", len(starts), len(ends))
	}
	if len(completes) != 3 {
		t.Fatalf("expected 3 summarization completions, got %d", len(completes))
	}
	for _, ev := range completes {
		if ev.BeforeChars != 500 || ev.AfterChars != 5 {
			t.Fatalf("expected before/after char counts threaded through, got %+v", ev)
		}
	}
	if len(store.state.Rounds[0].Summaries) != 1 {
		t.Fatalf("expected the summary persisted against round 1, got %+v", store.state.Rounds[0].Summaries)
	}
}

func TestValidateRejectsEmptyProblem(t *testing.T) {
	o := New(&fakeStore{}, nil)
	_, err := o.Run(context.Background(), "d7", "", "", twoAgents(), &fakeJudge{}, fixedConfig(1), nil)
	if debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateRejectsZeroRounds(t *testing.T) {
	o := New(&fakeStore{}, nil)
	cfg := fixedConfig(0)
	_, err := o.Run(context.Background(), "d8", "solve X", "", twoAgents(), &fakeJudge{}, cfg, nil)
	if debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateRejectsNoAgents(t *testing.T) {
	o := New(&fakeStore{}, nil)
	_, err := o.Run(context.Background(), "d9", "solve X", "", nil, &fakeJudge{}, fixedConfig(1), nil)
	if debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateRejectsDuplicateAgentIDs(t *testing.T) {
	o := New(&fakeStore{}, nil)
	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect},
		&fakeAgent{id: "a1", role: model.RoleSecurity},
	}
	_, err := o.Run(context.Background(), "d10", "solve X", "", agents, &fakeJudge{}, fixedConfig(1), nil)
	if debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateRejectsUnimplementedTerminationCondition(t *testing.T) {
	o := New(&fakeStore{}, nil)
	cfg := fixedConfig(1)
	cfg.TerminationCondition = model.TerminationCondition{Type: model.TerminationConvergence}
	_, err := o.Run(context.Background(), "d11", "solve X", "", twoAgents(), &fakeJudge{}, cfg, nil)
	if debateerr.KindOf(err) != debateerr.ConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestValidateRejectsUnimplementedSynthesisMethod(t *testing.T) {
	o := New(&fakeStore{}, nil)
	cfg := fixedConfig(1)
	cfg.SynthesisMethod = model.SynthesisVoting
	_, err := o.Run(context.Background(), "d12", "solve X", "", twoAgents(), &fakeJudge{}, cfg, nil)
	if debateerr.KindOf(err) != debateerr.ConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

// TestRunPropagatesFatalAgentErrorWithoutRetry covers the design decision
// that an agent-level failure is fatal: no retry, no skip, the whole run
// fails.
func TestRunPropagatesFatalAgentErrorWithoutRetry(t *testing.T) {
	store := &fakeStore{}
	o := New(store, nil)

	calls := 0
	boom := fmt.Errorf("boom")
	agents := []Agent{
		&fakeAgent{id: "a1", role: model.RoleArchitect, proposeFunc: func(ctx context.Context, dctx model.DebateContext) (model.Contribution, error) {
			calls++
			return model.Contribution{}, boom
		}},
		&fakeAgent{id: "a2", role: model.RoleSecurity},
	}

	_, err := o.Run(context.Background(), "d13", "solve X", "", agents, &fakeJudge{}, fixedConfig(1), nil)
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call (no retry), got %d", calls)
	}
	if !store.failCalled {
		t.Fatal("expected FailDebate called on agent failure")
	}
}

// TestRunEmitsOrderedRoundAndPhaseHooks checks the documented event
// ordering: RoundStart, then PhaseStart/PhaseComplete for each of the three
// phases in order, then SynthesisStart/SynthesisComplete once at the end.
func TestRunEmitsOrderedRoundAndPhaseHooks(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeHookSink{}
	o := New(store, sink)

	_, err := o.Run(context.Background(), "d14", "solve X", "", twoAgents(), &fakeJudge{}, fixedConfig(1), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []hooks.EventType
	for _, ev := range sink.events {
		switch ev.Type {
		case hooks.EventRoundStart, hooks.EventPhaseStart, hooks.EventPhaseComplete, hooks.EventSynthesisStart, hooks.EventSynthesisComplete:
			types = append(types, ev.Type)
		}
	}
	want := []hooks.EventType{
		hooks.EventRoundStart,
		hooks.EventPhaseStart, hooks.EventPhaseComplete,
		hooks.EventPhaseStart, hooks.EventPhaseComplete,
		hooks.EventPhaseStart, hooks.EventPhaseComplete,
		hooks.EventSynthesisStart, hooks.EventSynthesisComplete,
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d structural events, got %d: %+v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (full: %+v)", i, want[i], types[i], types)
		}
	}
}
