package api

import (
	"slices"
	"time"

	"ytreport/internal/services"
	"ytreport/internal/store"
	"ytreport/internal/workflow"
)

// ConvertOption tunes how much detail a converter includes.
type ConvertOption func(*convertOptions)

type convertOptions struct {
	detail bool
}

// WithDetail includes run context, transcripts, segments and report bodies.
// List endpoints leave it off to keep payloads small.
func WithDetail() ConvertOption {
	return func(o *convertOptions) { o.detail = true }
}

func applyOptions(opts []ConvertOption) convertOptions {
	var o convertOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FromRunState converts a run checkpoint to its API representation.
func FromRunState(state *workflow.RunState, opts ...ConvertOption) Run {
	if state == nil {
		return Run{}
	}
	o := applyOptions(opts)

	stages := make(map[string]string, len(state.Stages))
	for name, status := range state.Stages {
		stages[name] = string(status)
	}
	history := make([]StageAttempt, 0, len(state.History))
	for _, attempt := range state.History {
		history = append(history, StageAttempt{
			Stage:        attempt.Stage,
			Attempt:      attempt.Attempt,
			Outcome:      string(attempt.Outcome),
			StartedAt:    FormatTime(attempt.StartedAt),
			EndedAt:      FormatTime(attempt.EndedAt),
			ErrorKind:    string(attempt.ErrorKind),
			ErrorMessage: attempt.ErrorMessage,
		})
	}

	dto := Run{
		ID:           state.RunID,
		Graph:        state.GraphName,
		Status:       string(state.Status),
		CurrentStage: state.CurrentStage,
		Stages:       stages,
		History:      history,
		Degraded:     state.Degraded,
		FailedStage:  state.FailedStage,
		ErrorKind:    string(state.ErrorKind),
		ErrorMessage: state.ErrorMessage,
		CreatedAt:    FormatTime(state.CreatedAt),
		UpdatedAt:    FormatTime(state.UpdatedAt),
	}
	if state.ErrorKind != "" {
		dto.ErrorHint = services.Hint(state.ErrorKind)
	}
	if o.detail && state.Context != nil {
		for _, entry := range state.Context.Entries() {
			dto.Context = append(dto.Context, ContextEntry{Key: entry.Key, Writer: entry.Writer, Value: entry.Value})
		}
	}
	return dto
}

// FromRunStates converts a slice of run checkpoints.
func FromRunStates(states []*workflow.RunState) []Run {
	out := make([]Run, 0, len(states))
	for _, state := range states {
		out = append(out, FromRunState(state))
	}
	return out
}

// FromVideo converts a stored video.
func FromVideo(video *store.Video, opts ...ConvertOption) Video {
	if video == nil {
		return Video{}
	}
	o := applyOptions(opts)
	dto := Video{
		ID:              video.ID,
		YouTubeID:       video.YouTubeID,
		Title:           video.Title,
		URL:             video.URL,
		ChannelName:     video.ChannelName,
		DurationSeconds: video.DurationSeconds,
		Language:        video.Language,
		Summary:         video.Summary,
		Category:        video.Category,
		Topics:          nonNil(video.Topics),
		Processed:       video.Processed,
		RunID:           video.RunID,
		CreatedAt:       FormatTime(video.CreatedAt),
		UpdatedAt:       FormatTime(video.UpdatedAt),
	}
	if video.PublishedAt != nil {
		dto.PublishedAt = FormatTime(*video.PublishedAt)
	}
	if o.detail {
		dto.Transcript = video.Transcript
		for _, seg := range video.Segments {
			dto.Segments = append(dto.Segments, Segment{
				ID:             seg.ID,
				StartTime:      seg.StartTime,
				EndTime:        seg.EndTime,
				Transcript:     seg.Transcript,
				Subcategory:    seg.Subcategory,
				ContentSummary: seg.ContentSummary,
				Keywords:       nonNil(seg.Keywords),
			})
		}
	}
	return dto
}

// FromVideos converts a slice of stored videos.
func FromVideos(videos []*store.Video) []Video {
	out := make([]Video, 0, len(videos))
	for _, video := range videos {
		out = append(out, FromVideo(video))
	}
	return out
}

// FromReport converts a stored report.
func FromReport(report *store.Report, opts ...ConvertOption) Report {
	if report == nil {
		return Report{}
	}
	o := applyOptions(opts)
	dto := Report{
		ID:                 report.ID,
		VideoID:            report.VideoID,
		VideoTitle:         report.VideoTitle,
		Title:              report.Title,
		FormatType:         report.FormatType,
		CustomInstructions: report.Instructions,
		RunID:              report.RunID,
		CreatedAt:          FormatTime(report.CreatedAt),
		UpdatedAt:          FormatTime(report.UpdatedAt),
	}
	if o.detail {
		dto.Content = report.Content
	}
	return dto
}

// FromReports converts a slice of stored reports.
func FromReports(reports []*store.Report) []Report {
	out := make([]Report, 0, len(reports))
	for _, report := range reports {
		out = append(out, FromReport(report))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.RunStats))
	for status, count := range summary.RunStats {
		stats[string(status)] = count
	}
	active := slices.Clone(summary.ActiveRuns)
	slices.Sort(active)
	if active == nil {
		active = []string{}
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		ActiveRuns:  active,
		RunStats:    stats,
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastRun != nil {
		last := FromRunState(summary.LastRun)
		wf.LastRun = &last
	}
	return wf
}

// FromDatabaseHealth converts the store health check.
func FromDatabaseHealth(health store.DatabaseHealth) DatabaseStatus {
	return DatabaseStatus{
		Path:          health.DBPath,
		Readable:      health.DatabaseReadable,
		SchemaVersion: health.SchemaVersion,
		Integrity:     health.IntegrityCheck,
		MissingTables: health.MissingTables,
		TotalRuns:     health.TotalRuns,
		Error:         health.Error,
	}
}

// StageHealthSlice returns stage health ordered by name.
func StageHealthSlice(health map[string]workflow.StageHealth) []StageHealth {
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(value string) (time.Time, error) {
	return time.Parse(dateTimeFormat, value)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
