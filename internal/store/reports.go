package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const reportColumns = `r.id, r.video_id, v.title, r.title, r.format_type, r.content, r.instructions,
    r.run_id, r.created_at, r.updated_at`

// SaveReport inserts a report for an existing video and returns its id.
func (s *Store) SaveReport(ctx context.Context, report *Report) (int64, error) {
	if report == nil {
		return 0, errors.New("save report: report required")
	}
	now := formatTime(time.Now())

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM videos WHERE id = ?`, report.VideoID).Scan(&exists); err != nil {
			return fmt.Errorf("check video: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("video %d: %w", report.VideoID, ErrNotFound)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reports (video_id, title, format_type, content, instructions, run_id, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.VideoID,
			report.Title,
			report.FormatType,
			report.Content,
			nullableString(report.Instructions),
			nullableString(report.RunID),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetReport returns a report with its video title.
func (s *Store) GetReport(ctx context.Context, id int64) (*Report, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+reportColumns+` FROM reports r JOIN videos v ON v.id = r.video_id WHERE r.id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// ListReports returns reports newest first.
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]*Report, error) {
	var (
		where []string
		args  []any
	)
	if filter.VideoID > 0 {
		where = append(where, "r.video_id = ?")
		args = append(args, filter.VideoID)
	}
	if format := strings.TrimSpace(filter.FormatType); format != "" {
		where = append(where, "r.format_type = ?")
		args = append(args, format)
	}
	query := `SELECT ` + reportColumns + ` FROM reports r JOIN videos v ON v.id = r.video_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteReport removes a report.
func (s *Store) DeleteReport(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanReport(scanner interface{ Scan(dest ...any) error }) (*Report, error) {
	var (
		report       Report
		instructions sql.NullString
		runID        sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&report.ID,
		&report.VideoID,
		&report.VideoTitle,
		&report.Title,
		&report.FormatType,
		&report.Content,
		&instructions,
		&runID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	report.Instructions = instructions.String
	report.RunID = runID.String
	if t, err := parseTimeString(createdRaw); err == nil {
		report.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		report.UpdatedAt = t
	}
	return &report, nil
}
