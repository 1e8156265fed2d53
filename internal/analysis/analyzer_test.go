package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ytreport/internal/analysis"
	"ytreport/internal/config"
	"ytreport/internal/services"
	"ytreport/internal/services/llm"
)

type fakeCompleter struct {
	reply string
	err   error
	got   llm.Request
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.got = req
	return f.reply, f.err
}

func analysisConfig() config.LLMConfig {
	return config.LLMConfig{Temperature: 0.2, MaxTokens: 4000}
}

const sampleReply = "Here you go:\n```json\n" + `{
  "summary": "  A talk about Go concurrency.  ",
  "category": "Education",
  "topics": ["goroutines", " ", "channels"],
  "segments": [
    {"start_time": 0, "end_time": 45.5, "transcript": "intro text", "subcategory": "Intro",
     "content_summary": "Opening", "keywords": ["go", ""]},
    {"start_time": "01:30", "end_time": "2:05", "transcript": "channels text", "subcategory": "Channels",
     "content_summary": "Channels explained", "keywords": ["chan"]},
    {"start_time": 200, "end_time": 100, "transcript": "", "content_summary": ""}
  ]
}` + "\n```"

func TestAnalyzeParsesReply(t *testing.T) {
	fake := &fakeCompleter{reply: sampleReply}
	analyzer := analysis.New(fake, analysisConfig(), nil)

	result, err := analyzer.Analyze(context.Background(), "hello world", analysis.VideoInfo{Title: "Go Talk"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Summary != "A talk about Go concurrency." || result.Category != "Education" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if len(result.Topics) != 2 {
		t.Fatalf("expected blank topics dropped, got %#v", result.Topics)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected empty segment dropped, got %#v", result.Segments)
	}
	second := result.Segments[1]
	if second.StartTime != 90 || second.EndTime != 125 {
		t.Fatalf("expected clock timestamps decoded, got %v-%v", second.StartTime, second.EndTime)
	}
	if len(result.Segments[0].Keywords) != 1 {
		t.Fatalf("expected blank keywords dropped, got %#v", result.Segments[0].Keywords)
	}

	if fake.got.Temperature != 0.2 || fake.got.MaxTokens != 4000 {
		t.Fatalf("unexpected sampling settings: %#v", fake.got)
	}
	if !strings.Contains(fake.got.User, "Title: Go Talk") || !strings.Contains(fake.got.User, "Channel: Unknown channel") {
		t.Fatalf("prompt missing video info: %q", fake.got.User)
	}
	if !strings.Contains(fake.got.User, "hello world") {
		t.Fatal("prompt missing transcript")
	}
}

func TestAnalyzeRejectsEmptyTranscript(t *testing.T) {
	fake := &fakeCompleter{reply: sampleReply}
	analyzer := analysis.New(fake, analysisConfig(), nil)

	_, err := analyzer.Analyze(context.Background(), "   ", analysis.VideoInfo{})
	if kind := services.KindOf(err); kind != services.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %q (%v)", kind, err)
	}
	if fake.calls != 0 {
		t.Fatal("model must not be called for an empty transcript")
	}
}

func TestAnalyzeUnusableReply(t *testing.T) {
	replies := []string{
		"I cannot help with that.",
		`{"summary": "ok", "segments": "not a list"}`,
		`{"summary": "", "category": "x"}`,
	}
	for _, reply := range replies {
		analyzer := analysis.New(&fakeCompleter{reply: reply}, analysisConfig(), nil)
		_, err := analyzer.Analyze(context.Background(), "text", analysis.VideoInfo{})
		if kind := services.KindOf(err); kind != services.KindUpstreamRejected {
			t.Fatalf("reply %q: expected upstream_rejected, got %q (%v)", reply, kind, err)
		}
	}
}

func TestAnalyzePropagatesClientKind(t *testing.T) {
	clientErr := services.Wrap(services.ErrRateLimited, "", "llm complete", "http 429", nil)
	analyzer := analysis.New(&fakeCompleter{err: clientErr}, analysisConfig(), nil)

	_, err := analyzer.Analyze(context.Background(), "text", analysis.VideoInfo{})
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestAnalyzeOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": sampleReply}}},
		})
	}))
	defer server.Close()

	client := llm.NewClient(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	result, err := analysis.New(client, analysisConfig(), nil).Analyze(context.Background(), "text", analysis.VideoInfo{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.Category != "Education" {
		t.Fatalf("unexpected category %q", result.Category)
	}
}
