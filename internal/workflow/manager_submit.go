package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ytreport/internal/logging"
	"ytreport/internal/services"
)

// Submit validates seeds against the named graph, persists a pending run and
// returns its id. The run is picked up by the next free worker.
func (m *Manager) Submit(ctx context.Context, graphName string, seeds map[string]any) (string, error) {
	g, ok := m.exec.Graph(graphName)
	if !ok {
		return "", graphError(graphName, GraphUnknown, "", "graph is not registered")
	}
	for key := range seeds {
		if !g.AcceptsSeed(key) {
			return "", services.Wrap(services.ErrInvalidInput, "", "submit",
				fmt.Sprintf("graph %s does not accept input %q", graphName, key), nil)
		}
	}

	state := NewRunState(uuid.NewString(), g.Name(), m.clock.Now())
	for _, key := range g.Seeds() {
		value, ok := seeds[key]
		if !ok {
			continue
		}
		if err := state.Context.Seed(key, value); err != nil {
			return "", services.Wrap(services.ErrInvalidInput, "", "submit", "encode input", err)
		}
	}
	if err := m.store.CreateRun(ctx, state); err != nil {
		return "", fmt.Errorf("submit run: %w", err)
	}

	logging.WithContext(services.WithRunID(ctx, state.RunID), m.logger).Info("run submitted",
		logging.String(logging.FieldEventType, "run_submitted"),
		logging.String(logging.FieldGraph, g.Name()),
	)
	m.notify()
	return state.RunID, nil
}

// GetRunState returns the latest checkpointed state of a run.
func (m *Manager) GetRunState(ctx context.Context, runID string) (*RunState, error) {
	return m.store.Load(ctx, runID)
}

// ListRuns returns runs filtered by status; no statuses means all runs.
func (m *Manager) ListRuns(ctx context.Context, statuses ...RunStatus) ([]*RunState, error) {
	return m.store.ListRuns(ctx, statuses...)
}

// Cancel requests cancellation of a run. An executing run is interrupted
// before its next stage; a pending run fails without executing. Cancelling a
// terminal run is a no-op.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	m.mu.Lock()
	if cancel, ok := m.active[runID]; ok {
		m.mu.Unlock()
		cancel(ErrRunCancelled)
		m.logCancel(ctx, runID, "active")
		return nil
	}
	m.cancelRequested[runID] = struct{}{}
	m.mu.Unlock()

	updated, err := m.store.UpdatePending(ctx, runID, func(state *RunState) {
		state.MarkCancelled(m.clock.Now())
	})
	if err != nil {
		m.forgetCancel(runID)
		return fmt.Errorf("cancel run: %w", err)
	}
	if updated {
		m.forgetCancel(runID)
		m.logCancel(ctx, runID, "pending")
		return nil
	}

	// Not pending: either claimed by a worker between the two checks, which
	// then honours cancelRequested, or already terminal.
	state, err := m.store.Load(ctx, runID)
	if err != nil {
		m.forgetCancel(runID)
		return fmt.Errorf("cancel run: %w", err)
	}
	if state.Status.IsTerminal() {
		m.forgetCancel(runID)
		return nil
	}
	m.mu.Lock()
	if cancel, ok := m.active[runID]; ok {
		delete(m.cancelRequested, runID)
		m.mu.Unlock()
		cancel(ErrRunCancelled)
		m.logCancel(ctx, runID, "active")
		return nil
	}
	m.mu.Unlock()
	m.logCancel(ctx, runID, "deferred")
	return nil
}

// Resume executes a non-terminal run synchronously from its last checkpoint.
// Terminal runs are returned unchanged; a run owned by a worker yields
// ErrRunActive.
func (m *Manager) Resume(ctx context.Context, runID string) (*RunState, error) {
	state, err := m.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if state.Status.IsTerminal() {
		return state, nil
	}
	if state.Status == RunRunning || m.isActive(runID) {
		return nil, ErrRunActive
	}

	claimed, ok, err := m.store.ClaimRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resume run: %w", err)
	}
	if !ok {
		current, err := m.store.Load(ctx, runID)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() {
			return current, nil
		}
		return nil, ErrRunActive
	}

	if err := m.processRun(ctx, m.logger, claimed); err != nil {
		return claimed, err
	}
	return claimed, nil
}

func (m *Manager) isActive(runID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[runID]
	return ok
}

func (m *Manager) forgetCancel(runID string) {
	m.mu.Lock()
	delete(m.cancelRequested, runID)
	m.mu.Unlock()
}

func (m *Manager) logCancel(ctx context.Context, runID, phase string) {
	logging.WithContext(services.WithRunID(ctx, runID), m.logger).Info("run cancellation requested",
		logging.String(logging.FieldEventType, "run_cancel_requested"),
		logging.String("phase", phase),
	)
}

// IsNotFound reports whether err means the run does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
