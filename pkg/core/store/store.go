// Package store implements the State Store: append-only, file-backed JSON
// persistence for a debate's state, one file per debate id. It replaces the
// teacher's pgx/Postgres-backed repositories (incompatible with a local,
// dependency-free persistence layer) while keeping the same
// atomic-write-then-rename discipline and per-process, explicitly
// constructed instance the teacher used elsewhere for file-based caches.
package store

import (
	"encoding/base32"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slior/dialectic/pkg/core/debateerr"
	"github.com/slior/dialectic/pkg/core/model"
)

// Store is a file-backed State Store rooted at one directory. Callers
// construct their own instance; there is no package-level singleton.
type Store struct {
	dir string

	mu    sync.Mutex // guards the locks map itself
	locks map[string]*sync.Mutex
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, debateerr.New(debateerr.StorageError, "store.New", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// NewDebateID mints a debate id in the deb-YYYYMMDD-HHMMSS-<4char> format.
// The 4-character suffix is lowercase base32 (a-z, 2-7) derived from a
// random UUID, so two debates created in the same second still get
// distinct ids.
func NewDebateID(now time.Time) string {
	u := uuid.New()
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(u[:])
	suffix := strings.ToLower(enc[:4])
	return fmt.Sprintf("deb-%s-%s", now.Format("20060102-150405"), suffix)
}

// CreateDebate initializes and persists a new DebateState in StatusPending.
func (s *Store) CreateDebate(id, problem, context string, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.pathFor(id)); err == nil {
		return nil, debateerr.New(debateerr.InvalidInput, "store.CreateDebate", fmt.Errorf("debate %s already exists", id))
	}

	ds := &model.DebateState{
		ID:        id,
		Problem:   problem,
		Context:   context,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// BeginRound transitions the debate to StatusRunning (on its first round)
// and appends an empty round shell that subsequent AddContribution/
// AddSummary calls fill in.
func (s *Store) BeginRound(id string, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}

	ds.Status = model.StatusRunning
	ds.CurrentRound = len(ds.Rounds) + 1
	ds.Rounds = append(ds.Rounds, model.DebateRound{
		RoundNumber: ds.CurrentRound,
		Timestamp:   now,
	})
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// AddContribution appends a Contribution to the current (last) round. It
// fails with NoActiveRound if BeginRound hasn't been called yet.
func (s *Store) AddContribution(id string, c model.Contribution, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if len(ds.Rounds) == 0 {
		return nil, debateerr.New(debateerr.NoActiveRound, "store.AddContribution", fmt.Errorf("debate %s has no active round", id))
	}

	last := len(ds.Rounds) - 1
	ds.Rounds[last].Contributions = append(ds.Rounds[last].Contributions, c)
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// AddSummary records an agent's summary for the current round.
func (s *Store) AddSummary(id string, summary model.DebateSummary, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if len(ds.Rounds) == 0 {
		return nil, debateerr.New(debateerr.NoActiveRound, "store.AddSummary", fmt.Errorf("debate %s has no active round", id))
	}

	last := len(ds.Rounds) - 1
	if ds.Rounds[last].Summaries == nil {
		ds.Rounds[last].Summaries = make(map[string]*model.DebateSummary)
	}
	summaryCopy := summary
	ds.Rounds[last].Summaries[summary.AgentID] = &summaryCopy
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// CompleteDebate marks the debate completed and attaches the final Solution.
func (s *Store) CompleteDebate(id string, solution model.Solution, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}
	ds.Status = model.StatusCompleted
	ds.FinalSolution = &solution
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// FailDebate marks the debate failed. The debate remains readable (its
// rounds so far are preserved) but FinalSolution stays nil.
func (s *Store) FailDebate(id string, now time.Time) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}
	ds.Status = model.StatusFailed
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// UpdateUserFeedback attaches or replaces the user's feedback score on a
// completed debate. feedback must be -1 (thumbs down) or +1 (thumbs up).
func (s *Store) UpdateUserFeedback(id string, feedback int, now time.Time) (*model.DebateState, error) {
	if feedback != -1 && feedback != 1 {
		return nil, debateerr.New(debateerr.InvalidInput, "store.UpdateUserFeedback", fmt.Errorf("feedback must be -1 or +1, got %d", feedback))
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	ds, err := s.read(id)
	if err != nil {
		return nil, err
	}
	ds.UserFeedback = &feedback
	ds.UpdatedAt = now

	if err := s.write(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// GetDebate returns the current persisted state for id.
func (s *Store) GetDebate(id string) (*model.DebateState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.read(id)
}

// ListDebates returns every persisted debate's state, most recently created
// first.
func (s *Store) ListDebates() ([]*model.DebateState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, debateerr.New(debateerr.StorageError, "store.ListDebates", err)
	}

	var out []*model.DebateState
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		ds, err := s.GetDebate(id)
		if err != nil {
			continue
		}
		out = append(out, ds)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) read(id string) (*model.DebateState, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, debateerr.New(debateerr.NotFound, "store.read", fmt.Errorf("debate %s not found", id))
		}
		return nil, debateerr.New(debateerr.StorageError, "store.read", err)
	}

	var ds model.DebateState
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, debateerr.New(debateerr.StorageError, "store.read", fmt.Errorf("corrupt debate file %s: %w", id, err))
	}
	return &ds, nil
}

// write persists ds atomically: encode to a temp file in the same
// directory, then rename over the final path, so a crash mid-write never
// leaves a truncated or partially-written debate file.
func (s *Store) write(ds *model.DebateState) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return debateerr.New(debateerr.StorageError, "store.write", err)
	}

	final := s.pathFor(ds.ID)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return debateerr.New(debateerr.StorageError, "store.write", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return debateerr.New(debateerr.StorageError, "store.write", err)
	}
	return nil
}
