package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"ytreport/internal/services"
	"ytreport/internal/workflow"
)

// fakeClock advances instantly on After and records every requested wait.
// With block set, After never fires.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	block bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if c.block {
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// memStore is an in-memory workflow.Store.
type memStore struct {
	mu             sync.Mutex
	runs           map[string]*workflow.RunState
	order          []string
	heartbeats     map[string]time.Time
	snapshots      []*workflow.RunState
	failCheckpoint error
}

func newMemStore() *memStore {
	return &memStore{
		runs:       make(map[string]*workflow.RunState),
		heartbeats: make(map[string]time.Time),
	}
}

func (s *memStore) Checkpoint(_ context.Context, state *workflow.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCheckpoint != nil {
		return s.failCheckpoint
	}
	if _, ok := s.runs[state.RunID]; !ok {
		s.order = append(s.order, state.RunID)
	}
	s.runs[state.RunID] = state.Clone()
	s.snapshots = append(s.snapshots, state.Clone())
	return nil
}

func (s *memStore) Load(_ context.Context, runID string) (*workflow.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, services.ErrNotFound)
	}
	return state.Clone(), nil
}

func (s *memStore) CreateRun(_ context.Context, state *workflow.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[state.RunID]; ok {
		return errors.New("duplicate run")
	}
	s.runs[state.RunID] = state.Clone()
	s.order = append(s.order, state.RunID)
	return nil
}

func (s *memStore) ClaimNext(_ context.Context) (*workflow.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		state := s.runs[id]
		if state.Status == workflow.RunPending {
			state.Status = workflow.RunRunning
			s.heartbeats[id] = time.Now()
			return state.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) ClaimRun(_ context.Context, runID string) (*workflow.RunState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return nil, false, fmt.Errorf("run %s: %w", runID, services.ErrNotFound)
	}
	if state.Status != workflow.RunPending {
		return nil, false, nil
	}
	state.Status = workflow.RunRunning
	s.heartbeats[runID] = time.Now()
	return state.Clone(), true, nil
}

func (s *memStore) UpdatePending(_ context.Context, runID string, fn func(*workflow.RunState)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return false, fmt.Errorf("run %s: %w", runID, services.ErrNotFound)
	}
	if state.Status != workflow.RunPending {
		return false, nil
	}
	fn(state)
	return true, nil
}

func (s *memStore) ReclaimStaleRuns(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, state := range s.runs {
		if state.Status == workflow.RunRunning && s.heartbeats[id].Before(cutoff) {
			state.Status = workflow.RunPending
			count++
		}
	}
	return count, nil
}

func (s *memStore) UpdateHeartbeat(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[runID] = time.Now()
	return nil
}

func (s *memStore) ListRuns(_ context.Context, statuses ...workflow.RunStatus) ([]*workflow.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*workflow.RunState
	for _, id := range s.order {
		state := s.runs[id]
		if len(statuses) == 0 || containsStatus(statuses, state.Status) {
			out = append(out, state.Clone())
		}
	}
	return out, nil
}

func (s *memStore) RunStats(_ context.Context) (map[workflow.RunStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[workflow.RunStatus]int)
	for _, state := range s.runs {
		stats[state.Status]++
	}
	return stats, nil
}

func (s *memStore) Snapshots() []*workflow.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*workflow.RunState(nil), s.snapshots...)
}

func containsStatus(list []workflow.RunStatus, status workflow.RunStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

// scripted returns the queued errors in order, then succeeds with out.
type scripted struct {
	mu    sync.Mutex
	errs  []error
	out   workflow.Outputs
	calls int
}

func (s *scripted) run(context.Context, workflow.View) (workflow.Outputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	return s.out, nil
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func emit(out workflow.Outputs) workflow.Capability {
	return func(context.Context, workflow.View) (workflow.Outputs, error) {
		return out, nil
	}
}

func failWith(err error) workflow.Capability {
	return func(context.Context, workflow.View) (workflow.Outputs, error) {
		return nil, err
	}
}

func newExecutor(t *testing.T, store workflow.Checkpointer, clock workflow.Clock, graphs ...*workflow.Graph) *workflow.Executor {
	t.Helper()
	exec, err := workflow.NewExecutor(store, graphs, workflow.WithClock(clock))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func newRun(t *testing.T, graph string, seeds map[string]any) *workflow.RunState {
	t.Helper()
	state := workflow.NewRunState("run-"+graph, graph, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	keys := make([]string, 0, len(seeds))
	for key := range seeds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := state.Context.Seed(key, seeds[key]); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	return state
}

func stagesOf(state *workflow.RunState, stage string) []workflow.Outcome {
	var out []workflow.Outcome
	for _, attempt := range state.Attempts(stage) {
		out = append(out, attempt.Outcome)
	}
	return out
}

func timeoutErr() error {
	return services.Wrap(services.ErrTimeout, "analyze_content", "chat completion", "deadline exceeded", nil)
}
