package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"ytreport/internal/logging"
	"ytreport/internal/services"
)

// Checkpointer persists run snapshots.
type Checkpointer interface {
	Checkpoint(ctx context.Context, state *RunState) error
}

// Executor drives runs through their graphs. It is safe for concurrent use;
// each Execute call owns the RunState it is given.
type Executor struct {
	graphs         map[string]*Graph
	store          Checkpointer
	clock          Clock
	logger         *slog.Logger
	stageOverrides map[string]string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock replaces the wall clock.
func WithClock(clock Clock) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStageLogLevels applies per-stage minimum log levels.
func WithStageLogLevels(overrides map[string]string) ExecutorOption {
	return func(e *Executor) {
		e.stageOverrides = overrides
	}
}

// NewExecutor binds graphs to a checkpoint store.
func NewExecutor(store Checkpointer, graphs []*Graph, opts ...ExecutorOption) (*Executor, error) {
	if store == nil {
		return nil, errors.New("executor requires a checkpoint store")
	}
	e := &Executor{
		graphs: make(map[string]*Graph, len(graphs)),
		store:  store,
		clock:  SystemClock{},
		logger: logging.NewNop(),
	}
	for _, g := range graphs {
		if g == nil {
			continue
		}
		if _, dup := e.graphs[g.Name()]; dup {
			return nil, fmt.Errorf("graph %q registered twice", g.Name())
		}
		e.graphs[g.Name()] = g
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "workflow-executor")
	return e, nil
}

// Graph returns a registered graph.
func (e *Executor) Graph(name string) (*Graph, bool) {
	g, ok := e.graphs[name]
	return g, ok
}

// Graphs returns the registered graphs sorted by name.
func (e *Executor) Graphs() []*Graph {
	out := make([]*Graph, 0, len(e.graphs))
	for _, g := range e.graphs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute advances state until it reaches a terminal status. A terminal state
// is returned untouched. Run outcomes are recorded on state; the returned
// error is non-nil only when a checkpoint fails or ctx is cancelled for a
// reason other than ErrRunCancelled, in which case the run is left at its
// last checkpoint for a later resume.
func (e *Executor) Execute(ctx context.Context, state *RunState) error {
	if state == nil {
		return errors.New("execute: nil run state")
	}
	if state.Status.IsTerminal() {
		return nil
	}
	if state.Context == nil {
		state.Context = NewRunContext()
	}

	ctx = services.WithRunID(ctx, state.RunID)
	ctx = services.WithGraph(ctx, state.GraphName)
	r := &run{exec: e, state: state, logger: logging.WithContext(ctx, e.logger)}

	g, ok := e.graphs[state.GraphName]
	if !ok {
		err := graphError(state.GraphName, GraphUnknown, "", "graph is not registered")
		state.fail("", services.KindGraphConfiguration, err.Error())
		return r.finish(ctx)
	}
	r.graph = g

	if state.Status != RunRunning {
		state.Status = RunRunning
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("context_keys", state.Context.Len()),
		logging.Int("history", len(state.History)),
	)
	return r.walk(ctx)
}

type stageResult int

const (
	stageSucceeded stageResult = iota
	stageFailedFatal
	stageCancelled
	stageInterrupted
)

type run struct {
	exec   *Executor
	graph  *Graph
	state  *RunState
	logger *slog.Logger
}

func (r *run) walk(ctx context.Context) error {
	current := r.graph.Entry()
	for current != End {
		stage, _ := r.graph.Stage(current)
		r.state.CurrentStage = current

		switch status := r.state.StageStatus(current); {
		case status == StageDone && stage.outputsPresent(r.state.Context):
			next, err := r.graph.next(stage, r.state.Context)
			if err != nil {
				return r.failConfig(ctx, stage, err)
			}
			current = next
			continue
		case status == StageSkipped:
			current = r.graph.skipTarget(stage, r.state.Context)
			continue
		case status == StageFailed:
			return r.finish(ctx)
		}

		if interrupted, err := r.interrupted(ctx); interrupted {
			return err
		}

		if key, missing := stage.missingInput(r.state.Context); missing {
			r.state.setStage(current, StageSkipped)
			r.stageLogger(ctx, stage).Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skipped"),
				logging.String("missing_input", key),
			)
			if err := r.checkpoint(ctx); err != nil {
				return err
			}
			current = r.graph.skipTarget(stage, r.state.Context)
			continue
		}

		result, err := r.runStage(ctx, stage)
		switch result {
		case stageInterrupted:
			return err
		case stageCancelled:
			r.state.fail(current, services.KindCancelled, ErrRunCancelled.Error())
			return r.finish(ctx)
		case stageFailedFatal:
			if stage.Required {
				r.state.setStage(current, StageFailed)
				return r.finish(ctx)
			}
			r.state.setStage(current, StageSkipped)
			r.state.Degraded = true
			if err := r.checkpoint(ctx); err != nil {
				return err
			}
			current = r.graph.skipTarget(stage, r.state.Context)
			continue
		}

		next, err := r.graph.next(stage, r.state.Context)
		if err != nil {
			return r.failConfig(ctx, stage, err)
		}
		current = next
	}

	r.state.CurrentStage = ""
	r.resolveStatus()
	return r.finish(ctx)
}

// interrupted checks for cancellation between stages. A run cancellation is
// terminal; any other cancellation means shutdown.
func (r *run) interrupted(ctx context.Context) (bool, error) {
	if ctx.Err() == nil {
		return false, nil
	}
	if errors.Is(context.Cause(ctx), ErrRunCancelled) {
		r.state.fail(r.state.CurrentStage, services.KindCancelled, ErrRunCancelled.Error())
		return true, r.finish(ctx)
	}
	return true, r.shutdownError(ctx)
}

func (r *run) shutdownError(ctx context.Context) error {
	r.logger.Info("run interrupted by shutdown",
		logging.String(logging.FieldEventType, "run_interrupted"),
		logging.String(logging.FieldStage, r.state.CurrentStage),
	)
	return fmt.Errorf("run %s interrupted: %w", r.state.RunID, context.Cause(ctx))
}

func (r *run) failConfig(ctx context.Context, stage *Stage, err error) error {
	r.state.setStage(stage.Name, StageFailed)
	r.state.fail(stage.Name, services.KindGraphConfiguration, err.Error())
	return r.finish(ctx)
}

// resolveStatus picks the terminal status once the walk reaches End.
func (r *run) resolveStatus() {
	var skippedRequired []string
	for _, stage := range r.graph.Stages() {
		if stage.Required && r.state.StageStatus(stage.Name) == StageSkipped {
			skippedRequired = append(skippedRequired, stage.Name)
		}
	}
	switch {
	case len(skippedRequired) > 0 && r.state.Degraded:
		r.state.Status = RunPartiallySucceeded
	case len(skippedRequired) > 0:
		r.state.fail(skippedRequired[0], services.KindContract,
			fmt.Sprintf("required stage skipped: %s", strings.Join(skippedRequired, ", ")))
	case r.state.Degraded:
		r.state.Status = RunPartiallySucceeded
	default:
		r.state.Status = RunSucceeded
	}
}

// finish persists the terminal state. Persistence uses a context detached
// from cancellation so a cancelled run still records its outcome.
func (r *run) finish(ctx context.Context) error {
	if !r.state.Status.IsTerminal() {
		r.state.Status = RunFailed
	}
	if err := r.checkpoint(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(r.state.Status)),
		logging.Int("attempts", len(r.state.History)),
	}
	if r.state.ErrorKind != "" {
		attrs = append(attrs,
			logging.String(logging.FieldErrorKind, string(r.state.ErrorKind)),
			logging.String("error_message", r.state.ErrorMessage),
			logging.String(logging.FieldErrorHint, services.Hint(r.state.ErrorKind)),
		)
	}
	if r.state.Status == RunFailed {
		r.logger.Warn("run finished", logging.Args(attrs...)...)
	} else {
		r.logger.Info("run finished", logging.Args(attrs...)...)
	}
	return nil
}

func (r *run) checkpoint(ctx context.Context) error {
	r.state.UpdatedAt = r.exec.clock.Now().UTC()
	if err := r.exec.store.Checkpoint(ctx, r.state); err != nil {
		r.logger.Error("checkpoint failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "checkpoint_failed"),
			logging.String(logging.FieldErrorHint, "check database access; the run resumes from its last checkpoint"),
		)
		return fmt.Errorf("checkpoint run %s: %w", r.state.RunID, err)
	}
	return nil
}

func (r *run) stageLogger(ctx context.Context, stage *Stage) *slog.Logger {
	return logging.ForStage(logging.WithContext(ctx, r.exec.logger), stage.Name, r.exec.stageOverrides)
}
