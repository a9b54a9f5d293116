package store

import (
	"testing"
	"time"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error constructing store: %v", err)
	}
	return s
}

func TestCreateAndGetDebateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	ds, err := s.CreateDebate("deb-test-0001", "solve X", "some context", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", ds.Status)
	}

	got, err := s.GetDebate("deb-test-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Problem != "solve X" {
		t.Fatalf("unexpected problem round-tripped: %q", got.Problem)
	}
}

func TestAddContributionRequiresActiveRound(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if _, err := s.CreateDebate("deb-test-0002", "p", "", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := s.AddContribution("deb-test-0002", model.Contribution{AgentID: "a1"}, now)
	if debateerr.KindOf(err) != debateerr.NoActiveRound {
		t.Fatalf("expected NoActiveRound, got %v", err)
	}

	if _, err := s.BeginRound("deb-test-0002", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ds, err := s.AddContribution("deb-test-0002", model.Contribution{AgentID: "a1", Content: "hello"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Rounds[0].Contributions) != 1 {
		t.Fatalf("expected 1 contribution, got %d", len(ds.Rounds[0].Contributions))
	}
}

func TestGetDebateNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDebate("deb-does-not-exist")
	if debateerr.KindOf(err) != debateerr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListDebatesOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	if _, err := s.CreateDebate("deb-older", "p1", "", t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.CreateDebate("deb-newer", "p2", "", t2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := s.ListDebates()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 debates, got %d", len(all))
	}
	if all[0].ID != "deb-newer" {
		t.Fatalf("expected newest debate first, got %s", all[0].ID)
	}
}

func TestUpdateUserFeedbackRejectsOutOfRangeValues(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if _, err := s.CreateDebate("deb-test-0003", "p", "", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.UpdateUserFeedback("deb-test-0003", 2, now); debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput for feedback=2, got %v", err)
	}
	if _, err := s.UpdateUserFeedback("deb-test-0003", 0, now); debateerr.KindOf(err) != debateerr.InvalidInput {
		t.Fatalf("expected InvalidInput for feedback=0, got %v", err)
	}

	ds, err := s.UpdateUserFeedback("deb-test-0003", 1, now)
	if err != nil {
		t.Fatalf("unexpected error for feedback=1: %v", err)
	}
	if ds.UserFeedback == nil || *ds.UserFeedback != 1 {
		t.Fatalf("expected feedback=1 persisted, got %+v", ds.UserFeedback)
	}
}

func TestNewDebateIDFormat(t *testing.T) {
	id := NewDebateID(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	if len(id) != len("deb-20260730-120000-abcd") {
		t.Fatalf("unexpected id length: %q", id)
	}
	if id[:4] != "deb-" {
		t.Fatalf("expected deb- prefix, got %q", id)
	}
}
