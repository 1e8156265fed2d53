package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"ytreport/internal/logging"
	"ytreport/internal/services"
)

// Start reclaims runs orphaned by a previous process and begins background
// processing with the configured number of workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.exec == nil || len(m.exec.Graphs()) == 0 {
		m.mu.Unlock()
		return errors.New("workflow graphs not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	if err := m.heartbeat.ReclaimAll(ctx, m.logger); err != nil {
		m.setLastError(err)
		m.logger.Warn("reclaim of orphaned runs failed; they stay running until the heartbeat timeout",
			logging.Error(err),
			logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for completion. Runs in
// flight stay running at their last checkpoint.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if index == 0 {
			if err := m.heartbeat.ReclaimStaleRuns(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale runs failed; stuck runs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check database access"),
				)
			}
		}

		state, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if state == nil {
			m.waitForRunOrShutdown(ctx)
			continue
		}

		if err := m.processRun(ctx, logger, state); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// processRun executes a claimed run while keeping its heartbeat fresh.
func (m *Manager) processRun(ctx context.Context, logger *slog.Logger, state *RunState) error {
	ctx = services.WithRunID(ctx, state.RunID)
	ctx = services.WithGraph(ctx, state.GraphName)
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.mu.Lock()
	m.active[state.RunID] = cancel
	_, requested := m.cancelRequested[state.RunID]
	delete(m.cancelRequested, state.RunID)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, state.RunID)
		m.mu.Unlock()
	}()
	if requested {
		cancel(ErrRunCancelled)
	}

	var hb sync.WaitGroup
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hb.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hb, state.RunID)

	err := m.exec.Execute(runCtx, state)
	stopHeartbeat()
	hb.Wait()

	m.setLastRun(state)
	if err != nil {
		m.setLastError(err)
		if !errors.Is(err, context.Canceled) {
			logging.WithContext(ctx, logger).Error("run execution aborted",
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_aborted"),
				logging.String(logging.FieldErrorHint, "the run resumes from its last checkpoint once reclaimed"),
			)
		}
		return err
	}
	return nil
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next run",
		logging.Error(err),
		logging.String(logging.FieldEventType, "run_claim_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
	case <-m.clock.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForRunOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-m.clock.After(m.pollInterval):
	}
}
