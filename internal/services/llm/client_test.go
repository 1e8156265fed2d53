package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"ytreport/internal/services"
)

func replyWith(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{"content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(replyWith(t, `{"ok":true}`))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := httptest.NewServer(replyWith(t, "```json\n{\"ok\":true}\n```"))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestCompleteSendsRequest(t *testing.T) {
	var got chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if title := r.Header.Get("X-Title"); title != "ytreport" {
			t.Errorf("unexpected title header %q", title)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		replyWith(t, "hello")(w, r)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL, Model: "demo-model", Title: "ytreport"})
	content, err := client.Complete(context.Background(), Request{
		System:      "be brief",
		User:        "say hello",
		Temperature: 0.3,
		MaxTokens:   4000,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if content != "hello" {
		t.Fatalf("expected hello, got %q", content)
	}
	if got.Model != "demo-model" || got.Temperature != 0.3 || got.MaxTokens != 4000 {
		t.Fatalf("unexpected request payload: %#v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "say hello" {
		t.Fatalf("unexpected messages: %#v", got.Messages)
	}
	if got.ResponseFormat != nil {
		t.Fatalf("expected no response format, got %#v", got.ResponseFormat)
	}
}

func TestCompleteClassifiesFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		kind    services.Kind
	}{
		{"rate limited", statusHandler(http.StatusTooManyRequests), services.KindRateLimited},
		{"server error", statusHandler(http.StatusBadGateway), services.KindUnavailable},
		{"gateway timeout", statusHandler(http.StatusGatewayTimeout), services.KindTimeout},
		{"unauthorized", statusHandler(http.StatusUnauthorized), services.KindUpstreamRejected},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "bad model"}})
		}, services.KindUpstreamRejected},
		{"empty content", replyWith(t, ""), services.KindUnavailable},
		{"refusal", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": "", "refusal": "no"}}},
			})
		}, services.KindUpstreamRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			_, err := client.Complete(context.Background(), Request{User: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := services.KindOf(err); kind != tc.kind {
				t.Fatalf("expected kind %q, got %q (%v)", tc.kind, kind, err)
			}
		})
	}
}

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}
}

func TestCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := client.Complete(context.Background(), Request{User: "hi"})
	if kind := services.KindOf(err); kind != services.KindTimeout {
		t.Fatalf("expected timeout, got %q (%v)", kind, err)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	_, err := client.Complete(context.Background(), Request{User: "hi"})
	if kind := services.KindOf(err); kind != services.KindConfiguration {
		t.Fatalf("expected configuration kind, got %q (%v)", kind, err)
	}
}

func TestCompleteLimiterHonoursContext(t *testing.T) {
	server := httptest.NewServer(replyWith(t, "ok"))
	defer server.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"}, WithLimiter(limiter))
	if _, err := client.Complete(context.Background(), Request{User: "hi"}); err != nil {
		t.Fatalf("first request should pass the limiter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, Request{User: "hi"})
	if err == nil {
		t.Fatal("expected limiter wait to fail")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("expected 3s, got %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("expected negative value to be rejected")
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("expected empty value to be rejected")
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	inputs := []string{
		`{"summary":"a"}`,
		"```json\n{\"summary\":\"a\"}\n```",
		"Here is the analysis:\n{\"summary\":\"a\"}\nThanks!",
	}
	for _, input := range inputs {
		out.Summary = ""
		if err := DecodeLLMJSON(input, &out); err != nil {
			t.Fatalf("DecodeLLMJSON(%q) failed: %v", input, err)
		}
		if out.Summary != "a" {
			t.Fatalf("unexpected summary for %q: %q", input, out.Summary)
		}
	}
	if err := DecodeLLMJSON("no json here", &out); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := ExtractJSONObject(`prefix {"a":{"b":1}} suffix`)
	if !ok || got != `{"a":{"b":1}}` {
		t.Fatalf("unexpected extraction %q %v", got, ok)
	}
	if _, ok := ExtractJSONObject("} nothing {"); ok {
		t.Fatal("expected reversed braces to fail")
	}
}
