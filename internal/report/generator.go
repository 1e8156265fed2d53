package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ytreport/internal/analysis"
	"ytreport/internal/config"
	"ytreport/internal/logging"
	"ytreport/internal/services"
	"ytreport/internal/services/llm"
)

// Format selects the shape of a generated report.
type Format string

const (
	FormatSummary      Format = "summary"
	FormatDetailed     Format = "detailed"
	FormatPresentation Format = "presentation"
	FormatMarkdown     Format = "markdown"
	FormatBulletPoints Format = "bullet_points"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatSummary, FormatDetailed, FormatPresentation, FormatMarkdown, FormatBulletPoints}

// ParseFormat validates a format name. Matching ignores case and surrounding
// space.
func ParseFormat(value string) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := formatInstructions[normalized]; ok {
		return normalized, nil
	}
	return "", services.Wrap(services.ErrInvalidInput, "", "parse report format",
		fmt.Sprintf("unsupported format %q", value), nil)
}

// Label returns the human form of the format, e.g. "Bullet Points".
func (f Format) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(f), "_", " "))
}

// Source is the analysis a report is generated from.
type Source struct {
	VideoTitle string             `json:"video_title"`
	Summary    string             `json:"summary"`
	Category   string             `json:"category"`
	Topics     []string           `json:"topics"`
	Segments   []analysis.Segment `json:"segments"`
}

// Report is the generated document.
type Report struct {
	Title      string `json:"title"`
	FormatType Format `json:"format_type"`
	Content    string `json:"content"`
}

// Completer issues one chat completion. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Generator writes reports with a language model.
type Generator struct {
	client      Completer
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// New builds a generator using the sampling settings in cfg.
func New(client Completer, cfg config.LLMConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logging.NewComponentLogger(logger, "report"),
	}
}

// Generate renders source in the named format. Custom instructions, when
// given, are appended to the format instructions.
func (g *Generator) Generate(ctx context.Context, source Source, format, instructions string) (*Report, error) {
	const op = "generate report"
	parsed, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source.Summary) == "" && len(source.Segments) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "", op, "analysis has no summary or segments", nil)
	}
	title := strings.TrimSpace(source.VideoTitle)
	if title == "" {
		title = "Untitled video"
	}

	reply, err := g.client.Complete(ctx, llm.Request{
		System:      SystemPrompt,
		User:        buildPrompt(parsed, title, source, instructions),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(reply)
	if content == "" {
		return nil, services.Wrap(services.ErrUpstreamRejected, "", op, "model returned an empty report", nil)
	}
	report := &Report{
		Title:      fmt.Sprintf("%s - %s Report", title, parsed.Label()),
		FormatType: parsed,
		Content:    content,
	}
	g.logger.Info("report generated",
		logging.String(logging.FieldEventType, "report_complete"),
		logging.String("title", report.Title),
		logging.String("format", string(parsed)),
		logging.Int("length", len(content)),
	)
	return report, nil
}

func buildPrompt(format Format, title string, source Source, instructions string) string {
	directions := formatInstructions[format]
	if extra := strings.TrimSpace(instructions); extra != "" {
		directions += "\n\nAdditional instructions: " + extra
	}
	return fmt.Sprintf(reportPrompt,
		format,
		title,
		orNone(source.Category),
		orNone(source.Summary),
		orNone(strings.Join(source.Topics, ", ")),
		describeSegments(source.Segments),
		directions,
	)
}

func describeSegments(segments []analysis.Segment) string {
	if len(segments) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, segment := range segments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- [%s-%s] %s: %s",
			clock(float64(segment.StartTime)),
			clock(float64(segment.EndTime)),
			orNone(segment.Subcategory),
			orNone(segment.ContentSummary),
		)
		if len(segment.Keywords) > 0 {
			fmt.Fprintf(&sb, " (keywords: %s)", strings.Join(segment.Keywords, ", "))
		}
	}
	return sb.String()
}

func clock(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(none)"
	}
	return strings.TrimSpace(value)
}
