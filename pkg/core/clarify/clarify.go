// Package clarify implements the Clarification Phase: a pre-round-1 pass
// where every agent may ask clarifying questions about the problem before
// committing to a proposal, fanned out concurrently the same way the
// orchestrator fans out proposals.
package clarify

import (
	"context"
	"sync"

	"github.com/slior/dialectic/pkg/core/model"
)

// Asker is the subset of RoleAgent this phase needs; defined here (the
// consumer) so callers don't have to import roleagent just to satisfy it.
type Asker interface {
	AgentID() string
	AskClarifyingQuestions(ctx context.Context, problem string, max int) ([]model.ClarificationItem, error)
}

// Collect fans Asker.AskClarifyingQuestions out across all agents
// concurrently and returns one model.AgentClarifications per agent that
// asked at least one question. An agent whose call errors contributes no
// clarifications and its error is reported via onErr (which may be nil);
// one agent's failure never blocks the others.
func Collect(ctx context.Context, agents []Asker, problem string, maxPerAgent int, onErr func(agentID string, err error)) []model.AgentClarifications {
	results := make([]model.AgentClarifications, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a Asker) {
			defer wg.Done()
			items, err := a.AskClarifyingQuestions(ctx, problem, maxPerAgent)
			if err != nil {
				if onErr != nil {
					onErr(a.AgentID(), err)
				}
				return
			}
			results[i] = model.AgentClarifications{AgentID: a.AgentID(), Items: items}
		}(i, a)
	}
	wg.Wait()

	out := make([]model.AgentClarifications, 0, len(results))
	for _, r := range results {
		if len(r.Items) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// BindAnswers fills in the Answer field of every clarification item using
// answers (keyed by item ID); an item with no matching answer defaults to
// the literal "NA" rather than being left blank.
func BindAnswers(clarifications []model.AgentClarifications, answers map[string]string) []model.AgentClarifications {
	out := make([]model.AgentClarifications, len(clarifications))
	for i, ac := range clarifications {
		items := make([]model.ClarificationItem, len(ac.Items))
		for j, item := range ac.Items {
			answer, ok := answers[item.ID]
			if !ok || answer == "" {
				answer = "NA"
			}
			item.Answer = answer
			items[j] = item
		}
		out[i] = model.AgentClarifications{AgentID: ac.AgentID, Items: items}
	}
	return out
}
