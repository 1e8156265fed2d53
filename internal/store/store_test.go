package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ytreport/internal/services"
	"ytreport/internal/store"
	"ytreport/internal/testsupport"
	"ytreport/internal/workflow"
)

func newRun(t *testing.T, st *store.Store, runID string) *workflow.RunState {
	t.Helper()
	state := workflow.NewRunState(runID, "video_processing", time.Now())
	if err := state.Context.Seed("video_ref", "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := st.CreateRun(context.Background(), state); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return state
}

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.SchemaVersion != 1 || len(health.MissingTables) != 0 {
		t.Fatalf("unexpected schema state: %#v", health)
	}
	if st.Path() != cfg.DatabasePath() {
		t.Fatalf("expected path %q, got %q", cfg.DatabasePath(), st.Path())
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	newRun(t, st, "run-1")
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := store.OpenPath(filepath.Join(cfg.Paths.DataDir, "ytreport.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var ref string
	if err := loaded.Context.Decode("video_ref", &ref); err != nil || ref != "dQw4w9WgXcQ" {
		t.Fatalf("expected seeded video_ref, got %q (%v)", ref, err)
	}
}

func TestLoadMissingRun(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := st.Load(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if services.KindOf(err) != services.KindNotFound {
		t.Fatalf("expected not_found kind, got %q", services.KindOf(err))
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	state := newRun(t, st, "run-1")
	state.Status = workflow.RunRunning
	state.CurrentStage = "fetch_transcript"
	state.Stages["fetch_transcript"] = workflow.StageDone
	state.History = append(state.History, workflow.StageAttempt{
		Stage:   "fetch_transcript",
		Attempt: 1,
		Outcome: workflow.OutcomeSuccess,
	})
	if err := st.Checkpoint(ctx, state); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	loaded, err := st.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != workflow.RunRunning || loaded.CurrentStage != "fetch_transcript" {
		t.Fatalf("unexpected loaded state: %#v", loaded)
	}
	if loaded.StageStatus("fetch_transcript") != workflow.StageDone {
		t.Fatalf("expected stage done, got %q", loaded.StageStatus("fetch_transcript"))
	}
	if len(loaded.History) != 1 || loaded.History[0].Outcome != workflow.OutcomeSuccess {
		t.Fatalf("unexpected history: %#v", loaded.History)
	}
}

func TestCheckpointNeverOverwritesTerminal(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	state := newRun(t, st, "run-1")
	state.Status = workflow.RunSucceeded
	if err := st.Checkpoint(ctx, state); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	state.Status = workflow.RunRunning
	state.CurrentStage = "late"
	if err := st.Checkpoint(ctx, state); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	loaded, err := st.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != workflow.RunSucceeded || loaded.CurrentStage == "late" {
		t.Fatalf("terminal run was overwritten: %#v", loaded)
	}
}

func TestClaimNextFollowsSubmissionOrder(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	newRun(t, st, "run-b")
	newRun(t, st, "run-a")

	first, err := st.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if first == nil || first.RunID != "run-b" || first.Status != workflow.RunRunning {
		t.Fatalf("expected run-b running, got %#v", first)
	}
	second, err := st.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if second == nil || second.RunID != "run-a" {
		t.Fatalf("expected run-a, got %#v", second)
	}
	none, err := st.ClaimNext(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected empty claim, got %#v (%v)", none, err)
	}

	loaded, err := st.Load(ctx, "run-b")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != workflow.RunRunning {
		t.Fatalf("expected column status to win, got %q", loaded.Status)
	}
}

func TestClaimRunOnlyClaimsPending(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	newRun(t, st, "run-1")

	claimed, ok, err := st.ClaimRun(ctx, "run-1")
	if err != nil || !ok || claimed.Status != workflow.RunRunning {
		t.Fatalf("expected claim, got %#v ok=%v err=%v", claimed, ok, err)
	}
	if _, ok, err := st.ClaimRun(ctx, "run-1"); err != nil || ok {
		t.Fatalf("expected second claim to be refused, ok=%v err=%v", ok, err)
	}
	if _, _, err := st.ClaimRun(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePending(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	newRun(t, st, "run-1")

	updated, err := st.UpdatePending(ctx, "run-1", func(state *workflow.RunState) {
		state.Status = workflow.RunFailed
		state.ErrorKind = services.KindCancelled
		state.ErrorMessage = "cancelled"
	})
	if err != nil || !updated {
		t.Fatalf("expected update, got %v (%v)", updated, err)
	}
	loaded, err := st.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != workflow.RunFailed || loaded.ErrorKind != services.KindCancelled {
		t.Fatalf("unexpected state: %#v", loaded)
	}

	updated, err = st.UpdatePending(ctx, "run-1", func(*workflow.RunState) {
		t.Fatal("fn must not run for non-pending runs")
	})
	if err != nil || updated {
		t.Fatalf("expected no update, got %v (%v)", updated, err)
	}
}

func TestReclaimStaleRuns(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	newRun(t, st, "run-1")
	if _, err := st.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	n, err := st.ReclaimStaleRuns(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected fresh heartbeat to survive, reclaimed %d (%v)", n, err)
	}
	if err := st.UpdateHeartbeat(ctx, "run-1"); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}
	n, err = st.ReclaimStaleRuns(ctx, time.Now().Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("expected one reclaimed run, got %d (%v)", n, err)
	}
	loaded, err := st.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != workflow.RunPending {
		t.Fatalf("expected pending, got %q", loaded.Status)
	}
}

func TestListRunsAndStats(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	newRun(t, st, "run-1")
	newRun(t, st, "run-2")
	if _, err := st.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	all, err := st.ListRuns(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two runs, got %d (%v)", len(all), err)
	}
	pending, err := st.ListRuns(ctx, workflow.RunPending)
	if err != nil || len(pending) != 1 || pending[0].RunID != "run-2" {
		t.Fatalf("unexpected pending runs: %#v (%v)", pending, err)
	}
	stats, err := st.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if stats[workflow.RunPending] != 1 || stats[workflow.RunRunning] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestDeleteRunRequiresTerminal(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	state := newRun(t, st, "run-1")

	if deleted, err := st.DeleteRun(ctx, "run-1"); err != nil || deleted {
		t.Fatalf("pending run must not be deleted: %v (%v)", deleted, err)
	}
	state.Status = workflow.RunFailed
	if err := st.Checkpoint(ctx, state); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if deleted, err := st.DeleteRun(ctx, "run-1"); err != nil || !deleted {
		t.Fatalf("expected delete, got %v (%v)", deleted, err)
	}
}

func TestSaveAnalysisReplacesSegments(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	id := testsupport.SeedVideo(t, st, "abcdefghijk", "Go Concurrency")
	published := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	again, err := st.SaveAnalysis(ctx, &store.Video{
		YouTubeID:   "abcdefghijk",
		Title:       "Go Concurrency (updated)",
		URL:         "https://youtu.be/abcdefghijk",
		PublishedAt: &published,
		Summary:     "Updated",
		Processed:   true,
		Segments: []store.Segment{
			{StartTime: 30, EndTime: 60, Transcript: "second"},
			{StartTime: 0, EndTime: 30, Transcript: "first", Keywords: []string{"a", "b"}},
		},
	})
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if again != id {
		t.Fatalf("expected upsert to keep id %d, got %d", id, again)
	}

	video, err := st.GetVideo(ctx, id)
	if err != nil {
		t.Fatalf("GetVideo failed: %v", err)
	}
	if video.Title != "Go Concurrency (updated)" || video.Summary != "Updated" {
		t.Fatalf("unexpected video: %#v", video)
	}
	if video.PublishedAt == nil || !video.PublishedAt.Equal(published) {
		t.Fatalf("unexpected published at: %v", video.PublishedAt)
	}
	if len(video.Segments) != 2 || video.Segments[0].Transcript != "first" {
		t.Fatalf("expected two ordered segments, got %#v", video.Segments)
	}
	if len(video.Segments[0].Keywords) != 2 {
		t.Fatalf("expected keywords, got %#v", video.Segments[0].Keywords)
	}

	byYouTube, err := st.GetVideoByYouTubeID(ctx, "abcdefghijk")
	if err != nil || byYouTube.ID != id {
		t.Fatalf("GetVideoByYouTubeID mismatch: %#v (%v)", byYouTube, err)
	}
}

func TestListAndDeleteVideos(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.SeedVideo(t, st, "aaaaaaaaaaa", "First")
	second := testsupport.SeedVideo(t, st, "bbbbbbbbbbb", "Second")

	videos, err := st.ListVideos(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListVideos failed: %v", err)
	}
	if len(videos) != 2 || videos[0].ID != second {
		t.Fatalf("expected newest first, got %#v", videos)
	}
	if videos[0].Transcript != "" {
		t.Fatal("expected list to omit transcripts")
	}
	limited, err := st.ListVideos(ctx, 1, 1)
	if err != nil || len(limited) != 1 || limited[0].ID != first {
		t.Fatalf("unexpected page: %#v (%v)", limited, err)
	}

	if err := st.DeleteVideo(ctx, first); err != nil {
		t.Fatalf("DeleteVideo failed: %v", err)
	}
	if _, err := st.GetVideo(ctx, first); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteVideo(ctx, first); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestReports(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	videoID := testsupport.SeedVideo(t, st, "abcdefghijk", "Go Concurrency")

	if _, err := st.SaveReport(ctx, &store.Report{VideoID: videoID + 100, Title: "x", FormatType: "summary", Content: "y"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}

	summaryID, err := st.SaveReport(ctx, &store.Report{
		VideoID:    videoID,
		Title:      "Go Concurrency - Summary Report",
		FormatType: "summary",
		Content:    "short",
		RunID:      "run-1",
	})
	if err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if _, err := st.SaveReport(ctx, &store.Report{
		VideoID:      videoID,
		Title:        "Go Concurrency - Markdown Report",
		FormatType:   "markdown",
		Content:      "# long",
		Instructions: "focus on channels",
	}); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	report, err := st.GetReport(ctx, summaryID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.VideoTitle != "Go Concurrency" || report.RunID != "run-1" {
		t.Fatalf("unexpected report: %#v", report)
	}

	all, err := st.ListReports(ctx, store.ReportFilter{VideoID: videoID})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two reports, got %d (%v)", len(all), err)
	}
	markdown, err := st.ListReports(ctx, store.ReportFilter{FormatType: "markdown"})
	if err != nil || len(markdown) != 1 || markdown[0].Instructions != "focus on channels" {
		t.Fatalf("unexpected markdown reports: %#v (%v)", markdown, err)
	}

	if err := st.DeleteReport(ctx, summaryID); err != nil {
		t.Fatalf("DeleteReport failed: %v", err)
	}
	if _, err := st.GetReport(ctx, summaryID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.DeleteVideo(ctx, videoID); err != nil {
		t.Fatalf("DeleteVideo failed: %v", err)
	}
	remaining, err := st.ListReports(ctx, store.ReportFilter{})
	if err != nil || len(remaining) != 0 {
		t.Fatalf("expected cascade delete, got %d (%v)", len(remaining), err)
	}
}
