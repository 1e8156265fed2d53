package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const videoColumns = `id, youtube_id, title, url, channel_name, published_at, duration_seconds,
    language, transcript, summary, category, topics_json, processed, run_id, created_at, updated_at`

// SaveAnalysis upserts a video by YouTube id and replaces its segments.
// The stored row id is returned.
func (s *Store) SaveAnalysis(ctx context.Context, video *Video) (int64, error) {
	if video == nil || strings.TrimSpace(video.YouTubeID) == "" {
		return 0, errors.New("save analysis: youtube id required")
	}
	topics, err := encodeStrings(video.Topics)
	if err != nil {
		return 0, fmt.Errorf("encode topics: %w", err)
	}
	now := formatTime(time.Now())

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO videos (youtube_id, title, url, channel_name, published_at, duration_seconds,
                 language, transcript, summary, category, topics_json, processed, run_id, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT (youtube_id) DO UPDATE SET
                 title = excluded.title,
                 url = excluded.url,
                 channel_name = excluded.channel_name,
                 published_at = excluded.published_at,
                 duration_seconds = excluded.duration_seconds,
                 language = excluded.language,
                 transcript = excluded.transcript,
                 summary = excluded.summary,
                 category = excluded.category,
                 topics_json = excluded.topics_json,
                 processed = excluded.processed,
                 run_id = excluded.run_id,
                 updated_at = excluded.updated_at
             RETURNING id`,
			video.YouTubeID,
			video.Title,
			video.URL,
			nullableString(video.ChannelName),
			nullableTime(video.PublishedAt),
			nullableInt(video.DurationSeconds),
			nullableString(video.Language),
			nullableString(video.Transcript),
			nullableString(video.Summary),
			nullableString(video.Category),
			topics,
			boolToInt(video.Processed),
			nullableString(video.RunID),
			now,
			now,
		).Scan(&id); err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM video_segments WHERE video_id = ?`, id); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		for i, segment := range video.Segments {
			keywords, err := encodeStrings(segment.Keywords)
			if err != nil {
				return fmt.Errorf("encode keywords: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO video_segments (video_id, start_time, end_time, transcript, subcategory,
                     content_summary, keywords_json, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id,
				segment.StartTime,
				segment.EndTime,
				segment.Transcript,
				nullableString(segment.Subcategory),
				nullableString(segment.ContentSummary),
				keywords,
				now,
				now,
			); err != nil {
				return fmt.Errorf("insert segment %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetVideo returns a video with its segments.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if video.Segments, err = s.segments(ctx, video.ID); err != nil {
		return nil, err
	}
	return video, nil
}

// GetVideoByYouTubeID returns a video by its YouTube id.
func (s *Store) GetVideoByYouTubeID(ctx context.Context, youtubeID string) (*Video, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE youtube_id = ?`, youtubeID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", youtubeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if video.Segments, err = s.segments(ctx, video.ID); err != nil {
		return nil, err
	}
	return video, nil
}

// ListVideos returns videos newest first, without segments or transcripts.
func (s *Store) ListVideos(ctx context.Context, limit, offset int) ([]*Video, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		video.Transcript = ""
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// DeleteVideo removes a video and, by cascade, its segments and reports.
func (s *Store) DeleteVideo(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) segments(ctx context.Context, videoID int64) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_time, end_time, transcript, subcategory, content_summary, keywords_json
         FROM video_segments WHERE video_id = ? ORDER BY start_time, id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []Segment
	for rows.Next() {
		var (
			segment     Segment
			subcategory sql.NullString
			summary     sql.NullString
			keywords    sql.NullString
		)
		if err := rows.Scan(&segment.ID, &segment.StartTime, &segment.EndTime, &segment.Transcript,
			&subcategory, &summary, &keywords); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segment.Subcategory = subcategory.String
		segment.ContentSummary = summary.String
		segment.Keywords = decodeStrings(keywords)
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		video      Video
		channel    sql.NullString
		published  sql.NullString
		duration   sql.NullInt64
		language   sql.NullString
		transcript sql.NullString
		summary    sql.NullString
		category   sql.NullString
		topics     sql.NullString
		processed  int
		runID      sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&video.ID,
		&video.YouTubeID,
		&video.Title,
		&video.URL,
		&channel,
		&published,
		&duration,
		&language,
		&transcript,
		&summary,
		&category,
		&topics,
		&processed,
		&runID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	video.ChannelName = channel.String
	video.PublishedAt = parseNullTime(published)
	video.DurationSeconds = int(duration.Int64)
	video.Language = language.String
	video.Transcript = transcript.String
	video.Summary = summary.String
	video.Category = category.String
	video.Topics = decodeStrings(topics)
	video.Processed = processed != 0
	video.RunID = runID.String
	if t, err := parseTimeString(createdRaw); err == nil {
		video.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		video.UpdatedAt = t
	}
	return &video, nil
}
