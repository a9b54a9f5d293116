// Package runner wires the debate core's ports together into a runnable
// debate and drives it in a background goroutine, grounded on the
// teacher's DebateManager singleton: a map of active runs keyed by id,
// subscribe/unsubscribe for live streaming, and a periodic cleanup sweep of
// finished runs. Where the teacher's manager held *DebateOrchestrator
// values directly, a Runner holds only the Orchestrator's Store and a
// per-run hooks.Bus — the orchestrator itself is stateless across runs.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slior/dialectic/pkg/core/agent"
	"github.com/slior/dialectic/pkg/core/clarify"
	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/hooks"
	"github.com/slior/dialectic/pkg/core/judge"
	"github.com/slior/dialectic/pkg/core/model"
	"github.com/slior/dialectic/pkg/core/orchestrator"
	"github.com/slior/dialectic/pkg/core/prompt"
	"github.com/slior/dialectic/pkg/core/roleagent"
	"github.com/slior/dialectic/pkg/core/store"
	"github.com/slior/dialectic/pkg/core/tracing"
)

// Runner holds the shared, long-lived dependencies for every debate it
// starts: the State Store, the prompt Registry, tracing Instruments, and an
// agent.Manager that resolves each AgentConfig to its backing Provider. It
// is safe for concurrent use; StartDebate may be called many times against
// one Runner.
type Runner struct {
	Store   *store.Store
	Prompts *prompt.Registry
	Agents  *agent.Manager
	Tracing *tracing.Instruments

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	bus    *hooks.Bus
	status model.DebateStatus
}

// New builds a Runner. prompts defaults to prompt.NewDefaultRolePrompts()
// when nil; inst defaults to tracing.Noop() when nil.
func New(st *store.Store, agents *agent.Manager, prompts *prompt.Registry, inst *tracing.Instruments) *Runner {
	if prompts == nil {
		prompts = prompt.NewDefaultRolePrompts()
	}
	if inst == nil {
		inst = tracing.Noop()
	}
	return &Runner{Store: st, Prompts: prompts, Agents: agents, Tracing: inst, runs: make(map[string]*activeRun)}
}

// StartDebate allocates a debate id, builds every agent and the judge from
// agentConfigs/judgeConfig, collects clarifications if cfg enables them, and
// runs the debate to completion in a background goroutine. It returns
// immediately with the new id; callers poll Result or Subscribe for
// progress.
func (rn *Runner) StartDebate(problem, debateContext string, agentConfigs []model.AgentConfig, judgeConfig model.AgentConfig, cfg model.DebateConfig, answers map[string]string) (string, error) {
	now := time.Now()
	id := store.NewDebateID(now)

	agents, err := rn.buildAgents(agentConfigs)
	if err != nil {
		return "", err
	}
	j, err := rn.buildJudge(judgeConfig)
	if err != nil {
		return "", err
	}

	bus := hooks.New()
	rn.mu.Lock()
	rn.runs[id] = &activeRun{bus: bus, status: model.StatusPending}
	rn.mu.Unlock()

	go rn.run(id, problem, debateContext, agents, j, cfg, answers, bus)

	return id, nil
}

func (rn *Runner) run(id, problem, debateContext string, agents []orchestrator.Agent, j orchestrator.Judge, cfg model.DebateConfig, answers map[string]string, bus *hooks.Bus) {
	rn.setStatus(id, model.StatusRunning)

	ctx := context.Background()

	var clarifications []model.AgentClarifications
	if cfg.ClarificationsEnabled {
		askers := make([]clarify.Asker, 0, len(agents))
		for _, a := range agents {
			if asker, ok := a.(clarify.Asker); ok {
				askers = append(askers, asker)
			}
		}
		raw := clarify.Collect(ctx, askers, problem, cfg.MaxClarificationsPerAgent, func(agentID string, err error) {
			bus.Emit(hooks.Event{Type: hooks.EventAgentComplete, DebateID: id, AgentID: agentID, Phase: "clarification", Err: err})
		})
		clarifications = clarify.BindAnswers(raw, answers)
	}

	ctx, span := rn.Tracing.Tracer.Start(ctx, "debate.run")
	defer span.End()

	o := orchestrator.New(rn.Store, bus)
	_, err := o.Run(ctx, id, problem, debateContext, agents, j, cfg, clarifications)
	if err != nil {
		span.RecordError(err)
		rn.setStatus(id, model.StatusFailed)
		return
	}
	rn.setStatus(id, model.StatusCompleted)
}

func (rn *Runner) setStatus(id string, status model.DebateStatus) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if r, ok := rn.runs[id]; ok {
		r.status = status
	}
}

// Subscribe returns a live event channel for id's debate, or false if no
// such debate was started by this Runner.
func (rn *Runner) Subscribe(id string, bufferSize int) (<-chan hooks.Event, func(), bool) {
	rn.mu.RLock()
	r, ok := rn.runs[id]
	rn.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	ch, subID := r.bus.Subscribe(bufferSize)
	return ch, func() { r.bus.Unsubscribe(subID) }, true
}

// Result returns the persisted DebateState for id, reading through to the
// Store (not the in-memory run table), so it works across process restarts
// as long as the same Store directory is reused.
func (rn *Runner) Result(id string) (*model.DebateState, error) {
	return rn.Store.GetDebate(id)
}

// Feedback records a user's thumbs-up/down on a completed debate.
func (rn *Runner) Feedback(id string, value int) (*model.DebateState, error) {
	return rn.Store.UpdateUserFeedback(id, value, time.Now())
}

// Cleanup removes completed/failed runs older than maxAge from the
// in-memory run table (their persisted state in Store is untouched). Meant
// to be invoked periodically, mirroring the teacher's hourly sweep.
func (rn *Runner) Cleanup(maxAge time.Duration) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	for id, r := range rn.runs {
		if r.status == model.StatusRunning || r.status == model.StatusPending {
			continue
		}
		ds, err := rn.Store.GetDebate(id)
		if err != nil || time.Since(ds.UpdatedAt) > maxAge {
			delete(rn.runs, id)
		}
	}
}

func (rn *Runner) buildAgents(configs []model.AgentConfig) ([]orchestrator.Agent, error) {
	agents := make([]orchestrator.Agent, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.IsEnabled() {
			continue
		}
		provider, err := rn.Agents.GetProvider(cfg)
		if err != nil {
			return nil, debateerr.New(debateerr.ConfigError, "runner.buildAgents", fmt.Errorf("agent %s: %w", cfg.ID, err))
		}
		systemPrompt, err := prompt.GetRolePrompt(rn.Prompts, cfg.Role)
		if err != nil {
			return nil, debateerr.New(debateerr.ConfigError, "runner.buildAgents", fmt.Errorf("agent %s: %w", cfg.ID, err))
		}
		traced := tracing.WrapProvider(provider, cfg.Model, rn.Tracing)
		a := roleagent.New(cfg, traced, systemPrompt, nil, nil)
		agents = append(agents, tracing.WrapAgent(a, rn.Tracing))
	}
	if len(agents) == 0 {
		return nil, debateerr.New(debateerr.ConfigError, "runner.buildAgents", fmt.Errorf("no enabled agents configured"))
	}
	return agents, nil
}

func (rn *Runner) buildJudge(cfg model.AgentConfig) (orchestrator.Judge, error) {
	provider, err := rn.Agents.GetProvider(cfg)
	if err != nil {
		return nil, debateerr.New(debateerr.ConfigError, "runner.buildJudge", fmt.Errorf("judge: %w", err))
	}
	systemPrompt, err := rn.Prompts.GetSystemPrompt(prompt.JudgePromptID)
	if err != nil {
		return nil, debateerr.New(debateerr.ConfigError, "runner.buildJudge", fmt.Errorf("judge: %w", err))
	}
	traced := tracing.WrapProvider(provider, cfg.Model, rn.Tracing)
	j := judge.New(cfg, traced, systemPrompt)
	return tracing.WrapJudge(j, rn.Tracing), nil
}
