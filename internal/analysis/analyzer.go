package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ytreport/internal/config"
	"ytreport/internal/logging"
	"ytreport/internal/services"
	"ytreport/internal/services/llm"
)

const (
	unknownTitle   = "Unknown title"
	unknownChannel = "Unknown channel"
)

// Completer issues one chat completion. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// VideoInfo is the optional context given to the model alongside the
// transcript.
type VideoInfo struct {
	Title       string `json:"title,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

// Result is the structured analysis of one video.
type Result struct {
	Summary  string    `json:"summary"`
	Category string    `json:"category"`
	Topics   []string  `json:"topics"`
	Segments []Segment `json:"segments"`
}

// Segment is one logical section of a video.
type Segment struct {
	StartTime      Seconds  `json:"start_time"`
	EndTime        Seconds  `json:"end_time"`
	Transcript     string   `json:"transcript"`
	Subcategory    string   `json:"subcategory"`
	ContentSummary string   `json:"content_summary"`
	Keywords       []string `json:"keywords"`
}

// Seconds is a timestamp that decodes from a JSON number, a numeric string, or
// an "mm:ss" / "hh:mm:ss" string.
type Seconds float64

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		*s = Seconds(number)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	value, err := parseClock(text)
	if err != nil {
		return err
	}
	*s = Seconds(value)
	return nil
}

func parseClock(text string) (float64, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "s"))
	if text == "" {
		return 0, nil
	}
	var total float64
	for _, part := range strings.Split(text, ":") {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, fmt.Errorf("seconds: invalid timestamp %q", text)
		}
		total = total*60 + value
	}
	return total, nil
}

// Analyzer produces a Result from a transcript.
type Analyzer struct {
	client      Completer
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// New builds an analyzer using the sampling settings in cfg.
func New(client Completer, cfg config.LLMConfig, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze asks the model for a structured analysis of transcript.
func (a *Analyzer) Analyze(ctx context.Context, transcript string, info VideoInfo) (*Result, error) {
	const op = "analyze transcript"
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "", op, "transcript is empty", nil)
	}
	title := firstNonEmpty(info.Title, unknownTitle)
	channel := firstNonEmpty(info.ChannelName, unknownChannel)

	reply, err := a.client.Complete(ctx, llm.Request{
		System:      SystemPrompt,
		User:        fmt.Sprintf(analysisPrompt, title, channel, transcript),
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	result, err := ParseResult(reply)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstreamRejected, "", op, "unusable model reply", err)
	}
	a.logger.Info("transcript analyzed",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.String("title", title),
		logging.Int("segments", len(result.Segments)),
		logging.Int("topics", len(result.Topics)),
	)
	return result, nil
}

// ParseResult decodes and normalizes a model reply.
func ParseResult(reply string) (*Result, error) {
	object, ok := llm.ExtractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("reply has no JSON object")
	}
	var result Result
	if err := json.Unmarshal([]byte(object), &result); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	result.Category = strings.TrimSpace(result.Category)
	if result.Summary == "" {
		return nil, fmt.Errorf("analysis has no summary")
	}
	result.Topics = cleanStrings(result.Topics)
	segments := result.Segments[:0]
	for _, segment := range result.Segments {
		segment.Transcript = strings.TrimSpace(segment.Transcript)
		segment.Subcategory = strings.TrimSpace(segment.Subcategory)
		segment.ContentSummary = strings.TrimSpace(segment.ContentSummary)
		segment.Keywords = cleanStrings(segment.Keywords)
		if segment.EndTime < segment.StartTime {
			segment.EndTime = segment.StartTime
		}
		if segment.Transcript == "" && segment.ContentSummary == "" {
			continue
		}
		segments = append(segments, segment)
	}
	result.Segments = segments
	return &result, nil
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
