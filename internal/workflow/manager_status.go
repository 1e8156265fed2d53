package workflow

import (
	"context"

	"ytreport/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveRuns  []string
	LastError   string
	LastRun     *RunState
	RunStats    map[RunStatus]int
	StageHealth map[string]StageHealth
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastRun := m.lastRun.Clone()
	active := make([]string, 0, len(m.active))
	for id := range m.active {
		active = append(active, id)
	}
	m.mu.RUnlock()

	stats, err := m.store.RunStats(ctx)
	if err != nil {
		m.logger.Warn("failed to read run stats", logging.Error(err))
	}

	health := make(map[string]StageHealth)
	for _, g := range m.exec.Graphs() {
		for _, stage := range g.Stages() {
			if stage.Health == nil {
				continue
			}
			if _, seen := health[stage.Name]; seen {
				continue
			}
			health[stage.Name] = stage.Health(ctx)
		}
	}

	summary := StatusSummary{
		Running:     running,
		Workers:     m.workers,
		ActiveRuns:  active,
		LastRun:     lastRun,
		RunStats:    stats,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRun(state *RunState) {
	clone := state.Clone()
	m.mu.Lock()
	m.lastRun = clone
	m.mu.Unlock()
}
