package workflow_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"ytreport/internal/services"
	"ytreport/internal/workflow"
)

var fastRetry = workflow.RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

// videoGraph builds fetch_transcript -> analyze_content with the given
// capabilities, both stages required.
func videoGraph(t *testing.T, fetch, analyze workflow.Capability) *workflow.Graph {
	t.Helper()
	g, err := workflow.NewGraph(workflow.GraphSpec{
		Name:  "video",
		Entry: "fetch_transcript",
		Seeds: []string{"video_ref"},
		Stages: []workflow.Stage{
			{
				Name:       "fetch_transcript",
				InputKeys:  []string{"video_ref"},
				OutputKeys: []string{"transcript"},
				Capability: fetch,
				Retry:      fastRetry,
				Required:   true,
				Edges:      []workflow.Edge{workflow.Then("analyze_content")},
			},
			{
				Name:       "analyze_content",
				InputKeys:  []string{"transcript"},
				OutputKeys: []string{"analysis"},
				Capability: analyze,
				Retry:      fastRetry,
				Required:   true,
			},
		},
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func TestExecuteSucceeds(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock()
	g := videoGraph(t, emit(workflow.Outputs{"transcript": "hello"}), emit(workflow.Outputs{"analysis": map[string]string{"summary": "s"}}))
	exec := newExecutor(t, store, clock, g)

	state := newRun(t, "video", map[string]any{"video_ref": "dQw4w9WgXcQ"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunSucceeded {
		t.Fatalf("status = %s", state.Status)
	}
	if !reflect.DeepEqual(state.Context.Keys(), []string{"video_ref", "transcript", "analysis"}) {
		t.Fatalf("context keys = %v", state.Context.Keys())
	}
	if len(state.History) != 2 {
		t.Fatalf("history = %d attempts", len(state.History))
	}
	if state.CurrentStage != "" {
		t.Fatalf("current stage = %q", state.CurrentStage)
	}

	snapshots := store.Snapshots()
	var sawFetchCheckpoint bool
	for _, snap := range snapshots {
		if snap.Status == workflow.RunRunning && snap.StageStatus("fetch_transcript") == workflow.StageDone && snap.Context.Has("transcript") {
			sawFetchCheckpoint = true
		}
	}
	if !sawFetchCheckpoint {
		t.Fatal("expected a checkpoint after fetch_transcript succeeded")
	}
	if last := snapshots[len(snapshots)-1]; last.Status != workflow.RunSucceeded {
		t.Fatalf("last checkpoint status = %s", last.Status)
	}
}

func TestExecuteDisabledTranscriptFailsWithoutRetry(t *testing.T) {
	analyze := &scripted{out: workflow.Outputs{"analysis": "x"}}
	disabled := services.Wrap(services.ErrDisabled, "fetch_transcript", "fetch", "captions disabled", nil)
	g := videoGraph(t, failWith(disabled), analyze.run)
	exec := newExecutor(t, newMemStore(), newFakeClock(), g)

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed {
		t.Fatalf("status = %s", state.Status)
	}
	if got := stagesOf(state, "fetch_transcript"); !reflect.DeepEqual(got, []workflow.Outcome{workflow.OutcomeFatalFailure}) {
		t.Fatalf("fetch attempts = %v", got)
	}
	if len(state.Attempts("analyze_content")) != 0 || analyze.Calls() != 0 {
		t.Fatal("analyze_content should never run")
	}
	if state.ErrorKind != services.KindDisabled || state.FailedStage != "fetch_transcript" {
		t.Fatalf("error kind = %s stage = %s", state.ErrorKind, state.FailedStage)
	}
	if state.StageStatus("fetch_transcript") != workflow.StageFailed {
		t.Fatalf("fetch stage status = %s", state.StageStatus("fetch_transcript"))
	}
}

func TestExecuteRetriesTimeoutsThenSucceeds(t *testing.T) {
	clock := newFakeClock()
	analyze := &scripted{errs: []error{timeoutErr(), timeoutErr()}, out: workflow.Outputs{"analysis": "done"}}
	g := videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), analyze.run)
	exec := newExecutor(t, newMemStore(), clock, g)

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []workflow.Outcome{workflow.OutcomeRetryableFailure, workflow.OutcomeRetryableFailure, workflow.OutcomeSuccess}
	if got := stagesOf(state, "analyze_content"); !reflect.DeepEqual(got, want) {
		t.Fatalf("analyze attempts = %v", got)
	}
	if state.Status != workflow.RunSucceeded {
		t.Fatalf("status = %s", state.Status)
	}
	if got := clock.Waits(); !reflect.DeepEqual(got, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}) {
		t.Fatalf("backoff waits = %v", got)
	}
	for i, attempt := range state.Attempts("analyze_content") {
		if attempt.Attempt != i+1 {
			t.Fatalf("attempt %d numbered %d", i, attempt.Attempt)
		}
	}
}

func TestExecuteInvalidInputIsNotRetried(t *testing.T) {
	invalid := services.Wrap(services.ErrInvalidInput, "generate_report", "validate", "unsupported format", nil)
	g := videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), failWith(invalid))
	clock := newFakeClock()
	exec := newExecutor(t, newMemStore(), clock, g)

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindInvalidInput {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
	if got := stagesOf(state, "analyze_content"); !reflect.DeepEqual(got, []workflow.Outcome{workflow.OutcomeFatalFailure}) {
		t.Fatalf("attempts = %v", got)
	}
	if len(clock.Waits()) != 0 {
		t.Fatalf("unexpected backoff waits %v", clock.Waits())
	}
}

func TestExecuteExhaustsRetriesWithCappedBackoff(t *testing.T) {
	clock := newFakeClock()
	unavailable := services.Wrap(services.ErrUnavailable, "analyze_content", "chat completion", "502", nil)
	g, err := workflow.NewGraph(workflow.GraphSpec{
		Name:  "flaky",
		Entry: "call",
		Stages: []workflow.Stage{{
			Name:       "call",
			OutputKeys: []string{"x"},
			Capability: failWith(unavailable),
			Retry:      workflow.RetryPolicy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond},
			Required:   true,
		}},
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	exec := newExecutor(t, newMemStore(), clock, g)

	state := newRun(t, "flaky", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	if got := clock.Waits(); !reflect.DeepEqual(got, want) {
		t.Fatalf("waits = %v, want %v", got, want)
	}
	attempts := state.Attempts("call")
	if len(attempts) != 4 {
		t.Fatalf("attempts = %d", len(attempts))
	}
	last := attempts[len(attempts)-1]
	if last.Outcome != workflow.OutcomeFatalFailure || !strings.Contains(last.ErrorMessage, "retries exhausted") {
		t.Fatalf("last attempt = %+v", last)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindUnavailable {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
}

func TestExecuteExplicitWrappersOverrideKind(t *testing.T) {
	clock := newFakeClock()
	flaky := &scripted{errs: []error{workflow.Retryable(errors.New("socket reset"))}, out: workflow.Outputs{"x": 1}}
	g := workflow.MustGraph(workflow.GraphSpec{
		Name:  "wrappers",
		Entry: "a",
		Stages: []workflow.Stage{
			{Name: "a", OutputKeys: []string{"x"}, Capability: flaky.run, Retry: fastRetry, Required: true, Edges: []workflow.Edge{workflow.Then("b")}},
			{Name: "b", OutputKeys: []string{"y"}, Capability: failWith(workflow.Fatal(timeoutErr())), Retry: fastRetry, Required: true},
		},
	})
	exec := newExecutor(t, newMemStore(), clock, g)

	state := newRun(t, "wrappers", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if flaky.Calls() != 2 {
		t.Fatalf("retryable internal error calls = %d", flaky.Calls())
	}
	if got := len(state.Attempts("b")); got != 1 {
		t.Fatalf("fatal timeout attempts = %d", got)
	}
	if state.ErrorKind != services.KindTimeout {
		t.Fatalf("error kind = %s", state.ErrorKind)
	}
}

func TestExecuteContractViolationsAreFatal(t *testing.T) {
	cases := []struct {
		name string
		cap  workflow.Capability
	}{
		{"extra output", emit(workflow.Outputs{"x": 1, "y": 2})},
		{"missing output", emit(workflow.Outputs{})},
		{"undeclared read", func(_ context.Context, in workflow.View) (workflow.Outputs, error) {
			if _, err := workflow.Get[string](in, "secret"); err != nil {
				return nil, err
			}
			return workflow.Outputs{"x": 1}, nil
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := workflow.MustGraph(workflow.GraphSpec{
				Name:  "contract",
				Entry: "a",
				Seeds: []string{"secret"},
				Stages: []workflow.Stage{
					{Name: "a", OutputKeys: []string{"x"}, Capability: tc.cap, Retry: fastRetry, Required: true},
				},
			})
			exec := newExecutor(t, newMemStore(), newFakeClock(), g)
			state := newRun(t, "contract", map[string]any{"secret": "s"})
			if err := exec.Execute(context.Background(), state); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if state.Status != workflow.RunFailed || state.ErrorKind != services.KindContract {
				t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
			}
			if len(state.History) != 1 {
				t.Fatalf("contract violations must not retry: %d attempts", len(state.History))
			}
			if state.Context.Has("x") {
				t.Fatal("rejected fragment was merged")
			}
		})
	}
}

func TestExecuteOptionalFailureDegradesRun(t *testing.T) {
	var sawMeta bool
	analyze := func(_ context.Context, in workflow.View) (workflow.Outputs, error) {
		sawMeta = in.Has("metadata")
		return workflow.Outputs{"analysis": "a"}, nil
	}
	g := workflow.MustGraph(workflow.GraphSpec{
		Name:  "degraded",
		Entry: "fetch_metadata",
		Seeds: []string{"video_ref"},
		Stages: []workflow.Stage{
			{Name: "fetch_metadata", InputKeys: []string{"video_ref"}, OutputKeys: []string{"metadata"}, Capability: failWith(services.Wrap(services.ErrNotFound, "fetch_metadata", "watch page", "404", nil)), Retry: fastRetry, Edges: []workflow.Edge{workflow.Then("analyze")}},
			{Name: "analyze", InputKeys: []string{"video_ref"}, OptionalInputKeys: []string{"metadata"}, OutputKeys: []string{"analysis"}, Capability: analyze, Required: true},
		},
	})
	exec := newExecutor(t, newMemStore(), newFakeClock(), g)
	state := newRun(t, "degraded", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunPartiallySucceeded || !state.Degraded {
		t.Fatalf("status = %s degraded = %v", state.Status, state.Degraded)
	}
	if state.StageStatus("fetch_metadata") != workflow.StageSkipped || state.StageStatus("analyze") != workflow.StageDone {
		t.Fatalf("stages = %v", state.Stages)
	}
	if sawMeta {
		t.Fatal("metadata should be absent")
	}
	if state.ErrorKind != services.KindNotFound {
		t.Fatalf("error kind = %s", state.ErrorKind)
	}
}

func TestExecuteRequiredStageSkippedAfterOptionalFailure(t *testing.T) {
	g := workflow.MustGraph(workflow.GraphSpec{
		Name:  "dependent",
		Entry: "a",
		Stages: []workflow.Stage{
			{Name: "a", OutputKeys: []string{"x"}, Capability: failWith(workflow.Fatal(errors.New("boom"))), Edges: []workflow.Edge{workflow.Then("b")}},
			{Name: "b", InputKeys: []string{"x"}, OutputKeys: []string{"y"}, Capability: emit(workflow.Outputs{"y": 1}), Required: true},
		},
	})
	exec := newExecutor(t, newMemStore(), newFakeClock(), g)
	state := newRun(t, "dependent", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunPartiallySucceeded {
		t.Fatalf("status = %s", state.Status)
	}
	if state.StageStatus("b") != workflow.StageSkipped || len(state.Attempts("b")) != 0 {
		t.Fatalf("b should be skipped without attempts: %v", state.Stages)
	}
}

func TestExecuteRequiredStageSkippedWithoutDegradationFails(t *testing.T) {
	g := workflow.MustGraph(workflow.GraphSpec{
		Name:  "seedless",
		Entry: "a",
		Seeds: []string{"x"},
		Stages: []workflow.Stage{
			{Name: "a", InputKeys: []string{"x"}, OutputKeys: []string{"y"}, Capability: emit(workflow.Outputs{"y": 1}), Required: true},
		},
	})
	exec := newExecutor(t, newMemStore(), newFakeClock(), g)
	state := newRun(t, "seedless", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindContract {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
}

func TestExecuteFollowsFirstMatchingGuard(t *testing.T) {
	positive := func(r workflow.Reader) bool {
		n, ok, _ := workflow.Lookup[int](r, "n")
		return ok && n > 0
	}
	build := func(edges ...workflow.Edge) *workflow.Graph {
		return workflow.MustGraph(workflow.GraphSpec{
			Name:  "branch",
			Entry: "count",
			Stages: []workflow.Stage{
				{Name: "count", OutputKeys: []string{"n"}, Capability: emit(workflow.Outputs{"n": 0}), Required: true, Edges: edges},
				{Name: "many", OutputKeys: []string{"many"}, Capability: emit(workflow.Outputs{"many": true}), Required: true},
				{Name: "none", OutputKeys: []string{"none"}, Capability: emit(workflow.Outputs{"none": true})},
			},
		})
	}

	g := build(workflow.When("many", positive), workflow.Then("none"))
	exec := newExecutor(t, newMemStore(), newFakeClock(), g)
	state := newRun(t, "branch", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunSucceeded || !state.Context.Has("none") || state.Context.Has("many") {
		t.Fatalf("status = %s keys = %v", state.Status, state.Context.Keys())
	}

	g = build(workflow.When("many", positive), workflow.When("none", positive))
	exec = newExecutor(t, newMemStore(), newFakeClock(), g)
	state = newRun(t, "branch", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindGraphConfiguration {
		t.Fatalf("no matching guard: status = %s kind = %s", state.Status, state.ErrorKind)
	}
}

func TestExecuteTerminalStateIsIdempotent(t *testing.T) {
	store := newMemStore()
	fetch := &scripted{out: workflow.Outputs{"transcript": "t"}}
	exec := newExecutor(t, store, newFakeClock(), videoGraph(t, fetch.run, emit(workflow.Outputs{"analysis": "a"})))

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	before := len(store.Snapshots())
	history := len(state.History)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if fetch.Calls() != 1 || len(state.History) != history || len(store.Snapshots()) != before {
		t.Fatal("terminal run was executed again")
	}
}

func TestExecuteResumeSkipsCompletedStages(t *testing.T) {
	fetch := &scripted{out: workflow.Outputs{"transcript": "new"}}
	analyze := &scripted{out: workflow.Outputs{"analysis": "a"}}
	exec := newExecutor(t, newMemStore(), newFakeClock(), videoGraph(t, fetch.run, analyze.run))

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	state.Status = workflow.RunRunning
	if err := state.Context.Merge("fetch_transcript", []string{"transcript"}, workflow.Outputs{"transcript": "old"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	state.Stages["fetch_transcript"] = workflow.StageDone
	state.History = append(state.History, workflow.StageAttempt{Stage: "fetch_transcript", Attempt: 1, Outcome: workflow.OutcomeSuccess})

	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fetch.Calls() != 0 {
		t.Fatalf("completed stage re-invoked %d times", fetch.Calls())
	}
	if analyze.Calls() != 1 || state.Status != workflow.RunSucceeded {
		t.Fatalf("analyze calls = %d status = %s", analyze.Calls(), state.Status)
	}
	if got, _ := workflow.Get[string](state.Context, "transcript"); got != "old" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestExecuteResumeContinuesAttemptBudget(t *testing.T) {
	analyze := &scripted{errs: []error{timeoutErr(), timeoutErr(), timeoutErr()}}
	exec := newExecutor(t, newMemStore(), newFakeClock(), videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), analyze.run))

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	state.Status = workflow.RunRunning
	_ = state.Context.Merge("fetch_transcript", []string{"transcript"}, workflow.Outputs{"transcript": "t"})
	state.Stages["fetch_transcript"] = workflow.StageDone
	state.Stages["analyze_content"] = workflow.StageRetrying
	state.History = append(state.History,
		workflow.StageAttempt{Stage: "fetch_transcript", Attempt: 1, Outcome: workflow.OutcomeSuccess},
		workflow.StageAttempt{Stage: "analyze_content", Attempt: 1, Outcome: workflow.OutcomeRetryableFailure, ErrorKind: services.KindTimeout},
		workflow.StageAttempt{Stage: "analyze_content", Attempt: 2, Outcome: workflow.OutcomeRetryableFailure, ErrorKind: services.KindTimeout},
	)

	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if analyze.Calls() != 1 {
		t.Fatalf("resumed stage invoked %d times, want 1", analyze.Calls())
	}
	attempts := state.Attempts("analyze_content")
	if len(attempts) != 3 || attempts[2].Attempt != 3 || attempts[2].Outcome != workflow.OutcomeFatalFailure {
		t.Fatalf("attempts = %+v", attempts)
	}
	if state.Status != workflow.RunFailed {
		t.Fatalf("status = %s", state.Status)
	}
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	fetch := &scripted{out: workflow.Outputs{"transcript": "t"}}
	exec := newExecutor(t, newMemStore(), newFakeClock(), videoGraph(t, fetch.run, emit(workflow.Outputs{"analysis": "a"})))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(workflow.ErrRunCancelled)
	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(ctx, state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindCancelled {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
	if fetch.Calls() != 0 || len(state.History) != 0 {
		t.Fatal("no stage should run after cancellation")
	}
}

func TestExecuteCancelDuringCallDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	slow := func(context.Context, workflow.View) (workflow.Outputs, error) {
		close(started)
		<-release
		return workflow.Outputs{"analysis": "late"}, nil
	}
	exec := newExecutor(t, newMemStore(), newFakeClock(), videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), slow))

	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		<-started
		cancel(workflow.ErrRunCancelled)
	}()
	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(ctx, state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindCancelled {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
	if state.Context.Has("analysis") {
		t.Fatal("result of cancelled call was merged")
	}
	last, _ := state.LastAttempt()
	if last.Stage != "analyze_content" || last.ErrorKind != services.KindCancelled {
		t.Fatalf("last attempt = %+v", last)
	}
}

func TestExecuteCancelDuringBackoff(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	ctx, cancel := context.WithCancelCause(context.Background())
	var calls int
	flaky := func(context.Context, workflow.View) (workflow.Outputs, error) {
		calls++
		return nil, timeoutErr()
	}
	exec := newExecutor(t, newMemStore(), clock, videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), flaky))

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	done := make(chan error, 1)
	go func() { done <- exec.Execute(ctx, state) }()

	deadline := time.After(5 * time.Second)
	for len(clock.Waits()) == 0 {
		select {
		case <-deadline:
			t.Fatal("executor never started waiting")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel(workflow.ErrRunCancelled)
	if err := <-done; err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindCancelled {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
}

func TestExecuteShutdownLeavesRunResumable(t *testing.T) {
	store := newMemStore()
	started := make(chan struct{})
	blocking := func(ctx context.Context, _ workflow.View) (workflow.Outputs, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	exec := newExecutor(t, store, newFakeClock(), videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), blocking))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	err := exec.Execute(ctx, state)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
	persisted, loadErr := store.Load(context.Background(), state.RunID)
	if loadErr != nil {
		t.Fatalf("Load: %v", loadErr)
	}
	if persisted.Status != workflow.RunRunning {
		t.Fatalf("persisted status = %s", persisted.Status)
	}
	if persisted.StageStatus("fetch_transcript") != workflow.StageDone || len(persisted.Attempts("analyze_content")) != 0 {
		t.Fatalf("unexpected checkpoint: %+v", persisted.Stages)
	}
}

func TestExecuteCheckpointFailureReturnsError(t *testing.T) {
	store := newMemStore()
	store.failCheckpoint = errors.New("disk full")
	exec := newExecutor(t, store, newFakeClock(), videoGraph(t, emit(workflow.Outputs{"transcript": "t"}), emit(workflow.Outputs{"analysis": "a"})))

	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected checkpoint error, got %v", err)
	}
}

func TestExecuteUnknownGraphFails(t *testing.T) {
	exec := newExecutor(t, newMemStore(), newFakeClock())
	state := newRun(t, "missing", nil)
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || state.ErrorKind != services.KindGraphConfiguration {
		t.Fatalf("status = %s kind = %s", state.Status, state.ErrorKind)
	}
}

func TestExecutePanickingStageFails(t *testing.T) {
	boom := func(context.Context, workflow.View) (workflow.Outputs, error) {
		panic("nil map")
	}
	exec := newExecutor(t, newMemStore(), newFakeClock(), videoGraph(t, boom, emit(workflow.Outputs{"analysis": "a"})))
	state := newRun(t, "video", map[string]any{"video_ref": "abc"})
	if err := exec.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != workflow.RunFailed || len(state.Attempts("fetch_transcript")) != 1 {
		t.Fatalf("status = %s attempts = %d", state.Status, len(state.Attempts("fetch_transcript")))
	}
}
