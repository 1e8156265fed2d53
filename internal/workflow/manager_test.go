package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/services"
	"ytreport/internal/workflow"
)

func newTestManager(t *testing.T, store *memStore, graphs ...*workflow.Graph) *workflow.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Workflow.Workers = 2
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 60
	cfg.Workflow.HeartbeatTimeout = 120
	exec, err := workflow.NewExecutor(store, graphs)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return workflow.NewManager(&cfg, store, exec, nil)
}

func waitForTerminal(t *testing.T, mgr *workflow.Manager, runID string) *workflow.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := mgr.GetRunState(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRunState: %v", err)
		}
		if state.Status.IsTerminal() {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return nil
}

func simpleGraph(capability workflow.Capability) *workflow.Graph {
	return workflow.MustGraph(workflow.GraphSpec{
		Name:  "simple",
		Entry: "work",
		Seeds: []string{"input"},
		Stages: []workflow.Stage{{
			Name:       "work",
			InputKeys:  []string{"input"},
			OutputKeys: []string{"output"},
			Capability: capability,
			Required:   true,
			Health: func(context.Context) workflow.StageHealth {
				return workflow.HealthyStage("work")
			},
		}},
	})
}

func echo(_ context.Context, in workflow.View) (workflow.Outputs, error) {
	value, err := workflow.Get[string](in, "input")
	if err != nil {
		return nil, err
	}
	return workflow.Outputs{"output": value + "!"}, nil
}

func TestManagerProcessesSubmittedRuns(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store, simpleGraph(echo))
	ctx := context.Background()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	ids := make([]string, 0, 3)
	for _, input := range []string{"a", "b", "c"} {
		id, err := mgr.Submit(ctx, "simple", map[string]any{"input": input})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		state := waitForTerminal(t, mgr, id)
		if state.Status != workflow.RunSucceeded {
			t.Fatalf("run %d status = %s", i, state.Status)
		}
		got, _ := workflow.Get[string](state.Context, "output")
		if want := []string{"a!", "b!", "c!"}[i]; got != want {
			t.Fatalf("run %d output = %q, want %q", i, got, want)
		}
	}

	status := mgr.Status(ctx)
	if !status.Running || status.Workers != 2 {
		t.Fatalf("status = %+v", status)
	}
	if status.RunStats[workflow.RunSucceeded] != 3 {
		t.Fatalf("run stats = %v", status.RunStats)
	}
	if health, ok := status.StageHealth["work"]; !ok || !health.Ready {
		t.Fatalf("stage health = %+v", status.StageHealth)
	}
}

func TestManagerSubmitValidation(t *testing.T) {
	mgr := newTestManager(t, newMemStore(), simpleGraph(echo))
	ctx := context.Background()

	_, err := mgr.Submit(ctx, "unknown", nil)
	var graphErr *workflow.GraphConfigurationError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphConfigurationError, got %v", err)
	}

	_, err = mgr.Submit(ctx, "simple", map[string]any{"bogus": 1})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestManagerCancelPendingRun(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store, simpleGraph(echo))
	ctx := context.Background()

	id, err := mgr.Submit(ctx, "simple", map[string]any{"input": "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := mgr.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	state, err := mgr.GetRunState(ctx, id)
	if err != nil {
		t.Fatalf("GetRunState: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindCancelled {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
	if len(state.History) != 0 {
		t.Fatalf("cancelled pending run has history %v", state.History)
	}

	if err := mgr.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel of terminal run: %v", err)
	}
	if err := mgr.Cancel(ctx, "missing"); !workflow.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManagerCancelActiveRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	blocking := func(context.Context, workflow.View) (workflow.Outputs, error) {
		close(started)
		<-release
		return workflow.Outputs{"output": "late"}, nil
	}
	mgr := newTestManager(t, newMemStore(), simpleGraph(blocking))
	ctx := context.Background()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	id, err := mgr.Submit(ctx, "simple", map[string]any{"input": "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}
	if err := mgr.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	state := waitForTerminal(t, mgr, id)
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindCancelled {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
	if state.Context.Has("output") {
		t.Fatal("discarded output was merged")
	}
}

func TestManagerResume(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store, simpleGraph(echo))
	ctx := context.Background()

	id, err := mgr.Submit(ctx, "simple", map[string]any{"input": "r"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	state, err := mgr.Resume(ctx, id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if state.Status != workflow.RunSucceeded {
		t.Fatalf("status = %s", state.Status)
	}

	again, err := mgr.Resume(ctx, id)
	if err != nil || again.Status != workflow.RunSucceeded || len(again.History) != len(state.History) {
		t.Fatalf("resume of terminal run: %+v, %v", again, err)
	}

	orphan := workflow.NewRunState("orphan", "simple", time.Now())
	orphan.Status = workflow.RunRunning
	if err := store.CreateRun(ctx, orphan); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := mgr.Resume(ctx, "orphan"); !errors.Is(err, workflow.ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
}

func TestManagerStartReclaimsOrphanedRuns(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store, simpleGraph(echo))
	ctx := context.Background()

	orphan := workflow.NewRunState("orphan", "simple", time.Now())
	if err := orphan.Context.Seed("input", "o"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	orphan.Status = workflow.RunRunning
	if err := store.CreateRun(ctx, orphan); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	state := waitForTerminal(t, mgr, "orphan")
	if state.Status != workflow.RunSucceeded {
		t.Fatalf("status = %s", state.Status)
	}
}

func TestManagerStartTwiceFails(t *testing.T) {
	mgr := newTestManager(t, newMemStore(), simpleGraph(echo))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
