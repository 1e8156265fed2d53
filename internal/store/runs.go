package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ytreport/internal/workflow"
)

var _ workflow.Store = (*Store)(nil)

const runColumns = "run_id, status, state_json"

var terminalStatuses = []any{
	string(workflow.RunSucceeded),
	string(workflow.RunFailed),
	string(workflow.RunPartiallySucceeded),
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, state *workflow.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", state.RunID, err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO runs (run_id, graph_name, status, current_stage, error_kind, error_message, state_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.RunID,
		state.GraphName,
		string(state.Status),
		nullableString(state.CurrentStage),
		nullableString(string(state.ErrorKind)),
		nullableString(state.ErrorMessage),
		string(payload),
		formatTime(state.CreatedAt),
		formatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Checkpoint persists a run snapshot. Rows already in a terminal status are
// never overwritten.
func (s *Store) Checkpoint(ctx context.Context, state *workflow.RunState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", state.RunID, err)
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO runs (run_id, graph_name, status, current_stage, error_kind, error_message, state_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (run_id) DO UPDATE SET
             status = excluded.status,
             current_stage = excluded.current_stage,
             error_kind = excluded.error_kind,
             error_message = excluded.error_message,
             state_json = excluded.state_json,
             updated_at = excluded.updated_at
         WHERE runs.status NOT IN (?, ?, ?)`,
		append([]any{
			state.RunID,
			state.GraphName,
			string(state.Status),
			nullableString(state.CurrentStage),
			nullableString(string(state.ErrorKind)),
			nullableString(state.ErrorMessage),
			string(payload),
			formatTime(state.CreatedAt),
			formatTime(updated),
		}, terminalStatuses...)...,
	)
	if err != nil {
		return fmt.Errorf("checkpoint run %s: %w", state.RunID, err)
	}
	return nil
}

// Load returns the latest snapshot of a run.
func (s *Store) Load(ctx context.Context, runID string) (*workflow.RunState, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	state, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return state, nil
}

// ClaimNext moves the oldest pending run to running.
func (s *Store) ClaimNext(ctx context.Context) (*workflow.RunState, error) {
	var claimed *workflow.RunState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		row := tx.QueryRowContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY seq LIMIT 1`,
			string(workflow.RunPending))
		state, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := markRunning(ctx, tx, state.RunID); err != nil {
			return err
		}
		state.Status = workflow.RunRunning
		claimed = state
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next run: %w", err)
	}
	return claimed, nil
}

// ClaimRun moves the named run from pending to running.
func (s *Store) ClaimRun(ctx context.Context, runID string) (*workflow.RunState, bool, error) {
	var claimed *workflow.RunState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		row := tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
		state, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if state.Status != workflow.RunPending {
			return nil
		}
		if err := markRunning(ctx, tx, runID); err != nil {
			return err
		}
		state.Status = workflow.RunRunning
		claimed = state
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("claim run: %w", err)
	}
	return claimed, claimed != nil, nil
}

func markRunning(ctx context.Context, tx *sql.Tx, runID string) error {
	now := formatTime(time.Now())
	_, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, last_heartbeat = ?, updated_at = ? WHERE run_id = ?`,
		string(workflow.RunRunning), now, now, runID)
	return err
}

// UpdatePending applies fn to a pending run and persists the result.
func (s *Store) UpdatePending(ctx context.Context, runID string, fn func(*workflow.RunState)) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		updated = false
		row := tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
		state, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if state.Status != workflow.RunPending {
			return nil
		}
		fn(state)
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode run %s: %w", runID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, current_stage = ?, error_kind = ?, error_message = ?, state_json = ?, updated_at = ?
             WHERE run_id = ? AND status = ?`,
			string(state.Status),
			nullableString(state.CurrentStage),
			nullableString(string(state.ErrorKind)),
			nullableString(state.ErrorMessage),
			string(payload),
			formatTime(time.Now()),
			runID,
			string(workflow.RunPending),
		); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update pending run: %w", err)
	}
	return updated, nil
}

// ReclaimStaleRuns returns running runs whose heartbeat is older than cutoff
// to pending.
func (s *Store) ReclaimStaleRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		string(workflow.RunPending),
		formatTime(time.Now()),
		string(workflow.RunRunning),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale runs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the heartbeat of a running run.
func (s *Store) UpdateHeartbeat(ctx context.Context, runID string) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET last_heartbeat = ? WHERE run_id = ? AND status = ?`,
		now, runID, string(workflow.RunRunning),
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ListRuns returns runs in submission order, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, statuses ...workflow.RunStatus) ([]*workflow.RunState, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.RunState
	for rows.Next() {
		state, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, state)
	}
	return runs, rows.Err()
}

// RunStats returns a count of runs grouped by status.
func (s *Store) RunStats(ctx context.Context) (map[workflow.RunStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[workflow.RunStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[workflow.RunStatus(status)] = count
	}
	return stats, rows.Err()
}

// DeleteRun removes a terminal run. Active runs are never deleted.
func (s *Store) DeleteRun(ctx context.Context, runID string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE run_id = ? AND status IN (?, ?, ?)`,
		append([]any{runID}, terminalStatuses...)...)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*workflow.RunState, error) {
	var (
		runID   string
		status  string
		payload string
	)
	if err := scanner.Scan(&runID, &status, &payload); err != nil {
		return nil, err
	}
	var state workflow.RunState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	state.RunID = runID
	state.Status = workflow.RunStatus(status)
	if state.Context == nil {
		state.Context = workflow.NewRunContext()
	}
	if state.Stages == nil {
		state.Stages = make(map[string]workflow.StageStatus)
	}
	return &state, nil
}
