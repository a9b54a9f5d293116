package clarify

import (
	"context"
	"errors"
	"testing"

	"github.com/slior/dialectic/pkg/core/model"
)

type fakeAsker struct {
	id    string
	items []model.ClarificationItem
	err   error
}

func (f fakeAsker) AgentID() string { return f.id }

func (f fakeAsker) AskClarifyingQuestions(ctx context.Context, problem string, max int) ([]model.ClarificationItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func TestCollectFansOutAndSkipsEmpty(t *testing.T) {
	agents := []Asker{
		fakeAsker{id: "a1", items: []model.ClarificationItem{{ID: "a1-q1", Question: "what tech stack?"}}},
		fakeAsker{id: "a2"}, // no questions
		fakeAsker{id: "a3", items: []model.ClarificationItem{{ID: "a3-q1", Question: "what scale?"}}},
	}

	result := Collect(context.Background(), agents, "problem", 3, nil)

	if len(result) != 2 {
		t.Fatalf("expected 2 agents with clarifications, got %d", len(result))
	}
	ids := map[string]bool{}
	for _, r := range result {
		ids[r.AgentID] = true
	}
	if !ids["a1"] || !ids["a3"] {
		t.Fatalf("expected a1 and a3 present, got %+v", result)
	}
}

func TestCollectReportsPerAgentErrorWithoutBlockingOthers(t *testing.T) {
	var failed string
	agents := []Asker{
		fakeAsker{id: "a1", err: errors.New("boom")},
		fakeAsker{id: "a2", items: []model.ClarificationItem{{ID: "a2-q1", Question: "q"}}},
	}

	result := Collect(context.Background(), agents, "problem", 3, func(agentID string, err error) {
		failed = agentID
	})

	if failed != "a1" {
		t.Fatalf("expected a1's error reported, got %q", failed)
	}
	if len(result) != 1 || result[0].AgentID != "a2" {
		t.Fatalf("expected only a2's clarifications, got %+v", result)
	}
}

func TestBindAnswersDefaultsToNA(t *testing.T) {
	clarifications := []model.AgentClarifications{
		{AgentID: "a1", Items: []model.ClarificationItem{{ID: "a1-q1", Question: "q1"}, {ID: "a1-q2", Question: "q2"}}},
	}
	answers := map[string]string{"a1-q1": "answered"}

	bound := BindAnswers(clarifications, answers)

	if bound[0].Items[0].Answer != "answered" {
		t.Fatalf("expected answered item to keep its answer, got %q", bound[0].Items[0].Answer)
	}
	if bound[0].Items[1].Answer != "NA" {
		t.Fatalf("expected unanswered item to default to NA, got %q", bound[0].Items[1].Answer)
	}
}
