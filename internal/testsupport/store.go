package testsupport

import (
	"context"
	"testing"

	"ytreport/internal/config"
	"ytreport/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedVideo stores an analysed video with a single segment and returns its id.
func SeedVideo(t testing.TB, st *store.Store, youtubeID, title string) int64 {
	t.Helper()

	id, err := st.SaveAnalysis(context.Background(), &store.Video{
		YouTubeID: youtubeID,
		Title:     title,
		URL:       "https://www.youtube.com/watch?v=" + youtubeID,
		Summary:   "A short talk about " + title,
		Category:  "Education",
		Topics:    []string{"go", "testing"},
		Processed: true,
		Segments: []store.Segment{{
			StartTime:      0,
			EndTime:        30,
			Transcript:     "hello world",
			Subcategory:    "intro",
			ContentSummary: "Opening remarks",
			Keywords:       []string{"intro"},
		}},
	})
	if err != nil {
		t.Fatalf("store.SaveAnalysis: %v", err)
	}
	return id
}
