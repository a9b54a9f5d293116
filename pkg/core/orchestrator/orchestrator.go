// Package orchestrator implements the Orchestrator: the core state machine
// driving a debate through its proposal/critique/refinement rounds to a
// synthesized Solution. It defines its own narrow Agent/Judge/Store/HookSink
// ports rather than importing the roleagent/judge/store/hooks packages'
// concrete types, the same interface-seam discipline the teacher's tests
// relied on to substitute mock agents for real provider-backed ones.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/hooks"
	"github.com/slior/dialectic/pkg/core/model"
)

// Agent is the subset of a Role Agent's surface the Orchestrator drives.
type Agent interface {
	AgentID() string
	Role() model.AgentRole
	Propose(ctx context.Context, dctx model.DebateContext) (model.Contribution, error)
	Critique(ctx context.Context, dctx model.DebateContext, target model.Contribution) (model.Contribution, error)
	Refine(ctx context.Context, dctx model.DebateContext, ownPrior model.Contribution, critiques []model.Contribution) (model.Contribution, error)
	PrepareContext(ctx context.Context, dctx model.DebateContext, cfg *model.SummarizationConfig) (model.DebateContext, *model.DebateSummary)
}

// Judge is the subset of the Judge Agent's surface the Orchestrator drives.
type Judge interface {
	Synthesize(ctx context.Context, cfg model.DebateConfig, rounds []model.DebateRound, problem string) model.Solution
}

// Store is the subset of the State Store the Orchestrator mutates through.
type Store interface {
	CreateDebate(id, problem, context string, now time.Time) (*model.DebateState, error)
	BeginRound(id string, now time.Time) (*model.DebateState, error)
	AddContribution(id string, c model.Contribution, now time.Time) (*model.DebateState, error)
	AddSummary(id string, summary model.DebateSummary, now time.Time) (*model.DebateState, error)
	CompleteDebate(id string, solution model.Solution, now time.Time) (*model.DebateState, error)
	FailDebate(id string, now time.Time) (*model.DebateState, error)
}

// HookSink receives progress events. hooks.Bus satisfies this directly.
type HookSink interface {
	Emit(ev hooks.Event)
}

type noopHookSink struct{}

func (noopHookSink) Emit(hooks.Event) {}

// Orchestrator drives debate Runs. It holds no per-debate state between
// calls beyond its Store and HookSink references, so one Orchestrator value
// can drive multiple concurrent Runs on different debate ids.
type Orchestrator struct {
	Store Store
	Hooks HookSink

	// Now is a seam so tests can freeze the clock; nil means time.Now.
	Now func() time.Time
}

// New builds an Orchestrator. sink may be nil, in which case events are
// silently discarded.
func New(store Store, sink HookSink) *Orchestrator {
	if sink == nil {
		sink = noopHookSink{}
	}
	return &Orchestrator{Store: store, Hooks: sink}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) emit(ev hooks.Event) {
	o.Hooks.Emit(ev)
}

// Run drives one debate end to end: cfg.Rounds rounds of
// proposal/critique/refinement, then synthesis.
//
// id must already be allocated (e.g. via store.NewDebateID) — Run never
// mints one itself, so the Store port stays free of id-generation concerns.
// clarifications, if non-nil, is attached to every agent's DebateContext
// unchanged; collecting and binding them (C7) happens before Run is called.
func (o *Orchestrator) Run(ctx context.Context, id, problem, debateContext string, agents []Agent, judge Judge, cfg model.DebateConfig, clarifications []model.AgentClarifications) (model.DebateResult, error) {
	if err := validate(problem, agents, cfg); err != nil {
		return model.DebateResult{}, err
	}

	start := o.now()

	if _, err := o.Store.CreateDebate(id, problem, debateContext, start); err != nil {
		return model.DebateResult{}, err
	}

	rc := &runContext{
		o:              o,
		id:             id,
		problem:        problem,
		debateContext:  debateContext,
		agents:         agents,
		cfg:            cfg,
		clarifications: clarifications,
	}

	var ds *model.DebateState
	var totalTokens int

	for r := 1; r <= cfg.Rounds; r++ {
		roundCtx := ctx
		var cancel context.CancelFunc
		if cfg.TimeoutPerRound > 0 {
			roundCtx, cancel = context.WithTimeout(ctx, cfg.TimeoutPerRound)
		}

		newDS, tokens, err := rc.runRound(roundCtx, r, ds)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			o.Store.FailDebate(id, o.now())
			return model.DebateResult{}, classifyRoundError(ctx, roundCtx, err)
		}
		ds = newDS
		totalTokens += tokens
	}

	o.emit(hooks.Event{Type: hooks.EventSynthesisStart, DebateID: id})
	solution := judge.Synthesize(ctx, cfg, ds.Rounds, problem)
	finalDS, err := o.Store.CompleteDebate(id, solution, o.now())
	if err != nil {
		return model.DebateResult{}, err
	}
	o.emit(hooks.Event{Type: hooks.EventSynthesisComplete, DebateID: id})

	return model.DebateResult{
		DebateID: id,
		Solution: solution,
		Rounds:   finalDS.Rounds,
		Metadata: model.DebateResultMetadata{
			TotalRounds: cfg.Rounds,
			TotalTokens: totalTokens,
			DurationMs:  o.now().Sub(start).Milliseconds(),
		},
	}, nil
}

func classifyRoundError(runCtx, roundCtx context.Context, err error) error {
	if roundCtx.Err() == context.DeadlineExceeded {
		return debateerr.New(debateerr.TimeoutError, "orchestrator.Run", err)
	}
	if runCtx.Err() == context.Canceled {
		return debateerr.New(debateerr.Cancelled, "orchestrator.Run", err)
	}
	return err
}

func validate(problem string, agents []Agent, cfg model.DebateConfig) error {
	if problem == "" {
		return debateerr.New(debateerr.InvalidInput, "orchestrator.Run", fmt.Errorf("problem must not be empty"))
	}
	if cfg.Rounds < 1 {
		return debateerr.New(debateerr.InvalidInput, "orchestrator.Run", fmt.Errorf("rounds must be >= 1, got %d", cfg.Rounds))
	}
	if len(agents) == 0 {
		return debateerr.New(debateerr.InvalidInput, "orchestrator.Run", fmt.Errorf("at least one agent is required"))
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if seen[a.AgentID()] {
			return debateerr.New(debateerr.InvalidInput, "orchestrator.Run", fmt.Errorf("duplicate agent id %q", a.AgentID()))
		}
		seen[a.AgentID()] = true
	}
	if cfg.TerminationCondition.Type != "" && cfg.TerminationCondition.Type != model.TerminationFixed {
		return debateerr.New(debateerr.ConfigError, "orchestrator.Run", fmt.Errorf("termination condition %q not implemented", cfg.TerminationCondition.Type))
	}
	if cfg.SynthesisMethod != "" && cfg.SynthesisMethod != model.SynthesisJudge {
		return debateerr.New(debateerr.ConfigError, "orchestrator.Run", fmt.Errorf("synthesis method %q not implemented", cfg.SynthesisMethod))
	}
	return nil
}

// runContext carries the fixed-for-the-whole-Run inputs so phase helpers
// don't need a dozen parameters apiece.
type runContext struct {
	o              *Orchestrator
	id             string
	problem        string
	debateContext  string
	agents         []Agent
	cfg            model.DebateConfig
	clarifications []model.AgentClarifications
}

// runRound executes one full round (proposal, critique, refinement phases)
// and returns the debate state as of the round's end plus tokens spent.
func (rc *runContext) runRound(ctx context.Context, r int, priorDS *model.DebateState) (*model.DebateState, int, error) {
	o := rc.o
	ds, err := o.Store.BeginRound(rc.id, o.now())
	if err != nil {
		return nil, 0, err
	}
	o.emit(hooks.Event{Type: hooks.EventRoundStart, DebateID: rc.id, Round: r, TotalRounds: rc.cfg.Rounds})

	tokens := 0

	history := priorRounds(priorDS)

	o.emit(hooks.Event{Type: hooks.EventPhaseStart, DebateID: rc.id, Round: r, Phase: "proposal", ExpectedTaskCount: len(rc.agents)})
	proposals, ds, used, err := rc.runProposalPhase(ctx, r, history)
	if err != nil {
		return nil, tokens, err
	}
	tokens += used
	o.emit(hooks.Event{Type: hooks.EventPhaseComplete, DebateID: rc.id, Round: r, Phase: "proposal"})

	expectedCritiques := 0
	if n := len(rc.agents); n > 1 {
		expectedCritiques = n * (n - 1)
	}
	o.emit(hooks.Event{Type: hooks.EventPhaseStart, DebateID: rc.id, Round: r, Phase: "critique", ExpectedTaskCount: expectedCritiques})
	critiques, ds, used, err := rc.runCritiquePhase(ctx, r, ds, history, proposals)
	if err != nil {
		return nil, tokens, err
	}
	tokens += used
	o.emit(hooks.Event{Type: hooks.EventPhaseComplete, DebateID: rc.id, Round: r, Phase: "critique"})

	o.emit(hooks.Event{Type: hooks.EventPhaseStart, DebateID: rc.id, Round: r, Phase: "refinement", ExpectedTaskCount: len(rc.agents)})
	ds, used, err = rc.runRefinementPhase(ctx, r, ds, history, proposals, critiques)
	if err != nil {
		return nil, tokens, err
	}
	tokens += used
	o.emit(hooks.Event{Type: hooks.EventPhaseComplete, DebateID: rc.id, Round: r, Phase: "refinement"})

	return ds, tokens, nil
}

// priorRounds returns the rounds completed strictly before the one
// BeginRound just opened.
func priorRounds(priorDS *model.DebateState) []model.DebateRound {
	if priorDS == nil {
		return nil
	}
	return priorDS.Rounds
}

func (rc *runContext) baseDebateContext(history []model.DebateRound) model.DebateContext {
	return model.DebateContext{
		Problem:            rc.problem,
		Context:            rc.debateContext,
		History:            history,
		Clarifications:     rc.clarifications,
		IncludeFullHistory: rc.cfg.IncludeFullHistory,
	}
}

// prepareAgentContext runs PrepareContext for one agent, persisting and
// emitting the Summarization* hooks when a summary is produced.
func (rc *runContext) prepareAgentContext(ctx context.Context, a Agent, dctx model.DebateContext) model.DebateContext {
	o := rc.o
	out, summary := a.PrepareContext(ctx, dctx, rc.cfg.Summarization)
	if summary == nil {
		return out
	}

	o.emit(hooks.Event{Type: hooks.EventSummarizationStart, DebateID: rc.id, AgentID: a.AgentID(), AgentRole: string(a.Role())})
	if _, err := o.Store.AddSummary(rc.id, *summary, o.now()); err != nil {
		// Summarization failures are not escalated (§7): fall back to full
		// history for this call by discarding the summary.
		o.emit(hooks.Event{Type: hooks.EventSummarizationEnd, DebateID: rc.id, AgentID: a.AgentID(), Err: err})
		out.Summary = nil
		return out
	}
	o.emit(hooks.Event{
		Type:        hooks.EventSummarizationComplete,
		DebateID:    rc.id,
		AgentID:     a.AgentID(),
		AgentRole:   string(a.Role()),
		BeforeChars: summary.Metadata.BeforeChars,
		AfterChars:  summary.Metadata.AfterChars,
	})
	o.emit(hooks.Event{Type: hooks.EventSummarizationEnd, DebateID: rc.id, AgentID: a.AgentID()})
	return out
}

// fanoutResult is one task's outcome, carried through the concurrent
// fan-out so results can be persisted afterward in deterministic order.
type fanoutResult struct {
	contribution model.Contribution
	err          error
}

// runConcurrent runs each task in tasks concurrently and returns their
// results in the same order tasks were given, once all have finished.
func runConcurrent(tasks []func() (model.Contribution, error)) []fanoutResult {
	results := make([]fanoutResult, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task func() (model.Contribution, error)) {
			defer wg.Done()
			c, err := task()
			results[i] = fanoutResult{contribution: c, err: err}
		}(i, task)
	}
	wg.Wait()
	return results
}

func firstError(results []fanoutResult) error {
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func tokensOf(c model.Contribution) int { return c.Metadata.TokensUsed }

// runProposalPhase runs round r's proposal phase and returns the resulting
// proposals (one per agent, same order as rc.agents), the updated debate
// state, and total tokens spent.
func (rc *runContext) runProposalPhase(ctx context.Context, r int, history []model.DebateRound) ([]model.Contribution, *model.DebateState, int, error) {
	o := rc.o
	var ds *model.DebateState

	tasks := make([]func() (model.Contribution, error), len(rc.agents))
	for i, a := range rc.agents {
		a := a
		detail := ""
		if r > 1 {
			if prior, ok := findRefinement(history, a.AgentID(), r-1); ok {
				carried := prior
				carried.Type = model.ContributionProposal
				carried.TargetAgentID = ""
				carried.Metadata.TokensUsed = 0
				carried.Metadata.LatencyMs = 0
				tasks[i] = func() (model.Contribution, error) {
					o.emit(hooks.Event{Type: hooks.EventAgentStart, DebateID: rc.id, Round: r, Phase: "proposal", AgentID: a.AgentID(), AgentRole: string(a.Role())})
					o.emit(hooks.Event{Type: hooks.EventAgentComplete, DebateID: rc.id, Round: r, Phase: "proposal", AgentID: a.AgentID(), AgentRole: string(a.Role())})
					return carried, nil
				}
				continue
			}
			// Fallback: no refinement found for this agent in the prior
			// round, so fall back to a fresh Propose call and warn.
			detail = "missing prior refinement, falling back to fresh propose"
		}
		tasks[i] = func() (model.Contribution, error) {
			dctx := rc.prepareAgentContext(ctx, a, rc.baseDebateContext(history))
			o.emit(hooks.Event{Type: hooks.EventAgentStart, DebateID: rc.id, Round: r, Phase: "proposal", AgentID: a.AgentID(), AgentRole: string(a.Role()), Detail: detail})
			c, err := a.Propose(ctx, dctx)
			o.emit(hooks.Event{Type: hooks.EventAgentComplete, DebateID: rc.id, Round: r, Phase: "proposal", AgentID: a.AgentID(), AgentRole: string(a.Role())})
			return c, err
		}
	}

	results := runConcurrent(tasks)
	if err := firstError(results); err != nil {
		return nil, nil, 0, debateerr.New(debateerr.ProviderError, "orchestrator.proposal", err)
	}

	proposals := make([]model.Contribution, len(results))
	tokens := 0
	for i, res := range results {
		proposals[i] = res.contribution
		tokens += tokensOf(res.contribution)
		newDS, err := o.Store.AddContribution(rc.id, res.contribution, o.now())
		if err != nil {
			return nil, nil, tokens, err
		}
		ds = newDS
		o.emit(hooks.Event{Type: hooks.EventContributionCreated, DebateID: rc.id, Round: r, Phase: "proposal", AgentID: res.contribution.AgentID})
	}
	return proposals, ds, tokens, nil
}

// findRefinement looks for agentID's refinement contribution in round
// roundNumber within history (which covers all rounds strictly before the
// round currently being built).
func findRefinement(history []model.DebateRound, agentID string, roundNumber int) (model.Contribution, bool) {
	for _, round := range history {
		if round.RoundNumber != roundNumber {
			continue
		}
		for _, c := range round.Contributions {
			if c.AgentID == agentID && c.Type == model.ContributionRefinement {
				return c, true
			}
		}
	}
	return model.Contribution{}, false
}

// critiquePair is one (critic, target) scheduling unit.
type critiquePair struct {
	critic Agent
	target Agent
	proposal model.Contribution
}

// runCritiquePhase runs round r's critique phase: every ordered pair of
// distinct agents, critic critiquing target's proposal. Contributions are
// persisted in lexicographic (critic, target) id order.
func (rc *runContext) runCritiquePhase(ctx context.Context, r int, ds *model.DebateState, history []model.DebateRound, proposals []model.Contribution) ([]model.Contribution, *model.DebateState, int, error) {
	o := rc.o

	proposalByAgent := make(map[string]model.Contribution, len(proposals))
	for _, p := range proposals {
		proposalByAgent[p.AgentID] = p
	}

	var pairs []critiquePair
	for _, critic := range rc.agents {
		for _, target := range rc.agents {
			if critic.AgentID() == target.AgentID() {
				continue
			}
			pairs = append(pairs, critiquePair{critic: critic, target: target, proposal: proposalByAgent[target.AgentID()]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].critic.AgentID() != pairs[j].critic.AgentID() {
			return pairs[i].critic.AgentID() < pairs[j].critic.AgentID()
		}
		return pairs[i].target.AgentID() < pairs[j].target.AgentID()
	})

	tasks := make([]func() (model.Contribution, error), len(pairs))
	for i, p := range pairs {
		p := p
		tasks[i] = func() (model.Contribution, error) {
			dctx := rc.prepareAgentContext(ctx, p.critic, rc.baseDebateContext(history))
			o.emit(hooks.Event{Type: hooks.EventAgentStart, DebateID: rc.id, Round: r, Phase: "critique", AgentID: p.critic.AgentID(), AgentRole: string(p.critic.Role())})
			c, err := p.critic.Critique(ctx, dctx, p.proposal)
			if err == nil {
				c.TargetAgentID = p.target.AgentID()
			}
			o.emit(hooks.Event{Type: hooks.EventAgentComplete, DebateID: rc.id, Round: r, Phase: "critique", AgentID: p.critic.AgentID(), AgentRole: string(p.critic.Role())})
			return c, err
		}
	}

	results := runConcurrent(tasks)
	if err := firstError(results); err != nil {
		return nil, nil, 0, debateerr.New(debateerr.ProviderError, "orchestrator.critique", err)
	}

	critiques := make([]model.Contribution, len(results))
	tokens := 0
	for i, res := range results {
		critiques[i] = res.contribution
		tokens += tokensOf(res.contribution)
		newDS, err := o.Store.AddContribution(rc.id, res.contribution, o.now())
		if err != nil {
			return nil, nil, tokens, err
		}
		ds = newDS
		o.emit(hooks.Event{Type: hooks.EventContributionCreated, DebateID: rc.id, Round: r, Phase: "critique", AgentID: res.contribution.AgentID})
	}
	return critiques, ds, tokens, nil
}

// runRefinementPhase runs round r's refinement phase: each agent refines
// its own proposal given the critiques it received this round. Persisted in
// agent-config order.
func (rc *runContext) runRefinementPhase(ctx context.Context, r int, ds *model.DebateState, history []model.DebateRound, proposals, critiques []model.Contribution) (*model.DebateState, int, error) {
	o := rc.o

	proposalByAgent := make(map[string]model.Contribution, len(proposals))
	for _, p := range proposals {
		proposalByAgent[p.AgentID] = p
	}
	critiquesByTarget := make(map[string][]model.Contribution)
	for _, c := range critiques {
		critiquesByTarget[c.TargetAgentID] = append(critiquesByTarget[c.TargetAgentID], c)
	}

	tasks := make([]func() (model.Contribution, error), len(rc.agents))
	for i, a := range rc.agents {
		a := a
		own := proposalByAgent[a.AgentID()]
		received := critiquesByTarget[a.AgentID()]
		tasks[i] = func() (model.Contribution, error) {
			dctx := rc.prepareAgentContext(ctx, a, rc.baseDebateContext(history))
			o.emit(hooks.Event{Type: hooks.EventAgentStart, DebateID: rc.id, Round: r, Phase: "refinement", AgentID: a.AgentID(), AgentRole: string(a.Role())})
			c, err := a.Refine(ctx, dctx, own, received)
			o.emit(hooks.Event{Type: hooks.EventAgentComplete, DebateID: rc.id, Round: r, Phase: "refinement", AgentID: a.AgentID(), AgentRole: string(a.Role())})
			return c, err
		}
	}

	results := runConcurrent(tasks)
	if err := firstError(results); err != nil {
		return nil, 0, debateerr.New(debateerr.ProviderError, "orchestrator.refinement", err)
	}

	tokens := 0
	for _, res := range results {
		tokens += tokensOf(res.contribution)
		newDS, err := o.Store.AddContribution(rc.id, res.contribution, o.now())
		if err != nil {
			return nil, tokens, err
		}
		ds = newDS
		o.emit(hooks.Event{Type: hooks.EventContributionCreated, DebateID: rc.id, Round: r, Phase: "refinement", AgentID: res.contribution.AgentID})
	}
	return ds, tokens, nil
}
