package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ytreport/internal/analysis"
	"ytreport/internal/report"
	"ytreport/internal/services"
	"ytreport/internal/store"
	"ytreport/internal/workflow"
	"ytreport/internal/youtube"
)

// TranscriptSource fetches captions and watch-page metadata.
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, videoRef, lang string) (*youtube.Transcript, error)
	FetchMetadata(ctx context.Context, videoRef string) (*youtube.Metadata, error)
}

// ContentAnalyzer turns a transcript into a structured analysis.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, transcript string, info analysis.VideoInfo) (*analysis.Result, error)
}

// ReportWriter renders an analysis in a report format.
type ReportWriter interface {
	Generate(ctx context.Context, source report.Source, format, instructions string) (*report.Report, error)
}

// ResultStore persists analyses and reports.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, video *store.Video) (int64, error)
	GetVideo(ctx context.Context, id int64) (*store.Video, error)
	SaveReport(ctx context.Context, report *store.Report) (int64, error)
}

// Bindings are the capabilities and policies the graphs are built from.
type Bindings struct {
	Transcripts TranscriptSource
	Analyzer    ContentAnalyzer
	Reports     ReportWriter
	Results     ResultStore
	Retry       workflow.RetryPolicy

	// Optional readiness probes surfaced as stage health.
	TranscriptHealth func(context.Context) error
	AnalysisHealth   func(context.Context) error
	ReportHealth     func(context.Context) error
}

func (b Bindings) validate() error {
	var missing []string
	if b.Transcripts == nil {
		missing = append(missing, "transcript source")
	}
	if b.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if b.Reports == nil {
		missing = append(missing, "report writer")
	}
	if b.Results == nil {
		missing = append(missing, "result store")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline bindings missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Graphs builds both pipeline graphs.
func Graphs(b Bindings) ([]*workflow.Graph, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	video, err := VideoProcessingGraph(b)
	if err != nil {
		return nil, err
	}
	reports, err := ReportGenerationGraph(b)
	if err != nil {
		return nil, err
	}
	return []*workflow.Graph{video, reports}, nil
}

// VideoProcessingGraph fetches a transcript, analyzes it and stores the
// result. Analysis only follows a non-empty transcript.
func VideoProcessingGraph(b Bindings) (*workflow.Graph, error) {
	s := stages{b}
	return workflow.NewGraph(workflow.GraphSpec{
		Name:  GraphVideoProcessing,
		Entry: StageFetchMetadata,
		Seeds: []string{KeyVideoRef, KeyLanguage},
		Stages: []workflow.Stage{
			{
				Name:       StageFetchMetadata,
				InputKeys:  []string{KeyVideoRef},
				OutputKeys: []string{KeyMetadata},
				Capability: s.fetchMetadata,
				Retry:      b.Retry,
				Edges:      []workflow.Edge{workflow.Then(StageFetchTranscript)},
			},
			{
				Name:              StageFetchTranscript,
				InputKeys:         []string{KeyVideoRef},
				OptionalInputKeys: []string{KeyLanguage},
				OutputKeys:        []string{KeyTranscript},
				Capability:        s.fetchTranscript,
				Retry:             b.Retry,
				Required:          true,
				Edges:             []workflow.Edge{workflow.When(StageAnalyzeContent, transcriptPresent)},
				Health:            probe(StageFetchTranscript, b.TranscriptHealth),
			},
			{
				Name:              StageAnalyzeContent,
				InputKeys:         []string{KeyTranscript},
				OptionalInputKeys: []string{KeyMetadata},
				OutputKeys:        []string{KeyAnalysis},
				Capability:        s.analyzeContent,
				Retry:             b.Retry,
				Required:          true,
				Edges:             []workflow.Edge{workflow.Then(StageSaveAnalysis)},
				Health:            probe(StageAnalyzeContent, b.AnalysisHealth),
			},
			{
				Name:              StageSaveAnalysis,
				InputKeys:         []string{KeyTranscript, KeyAnalysis},
				OptionalInputKeys: []string{KeyMetadata},
				OutputKeys:        []string{KeyVideoID},
				Capability:        s.saveAnalysis,
				Retry:             b.Retry,
				Required:          true,
			},
		},
	})
}

// ReportGenerationGraph loads a stored analysis, generates a report and
// stores it.
func ReportGenerationGraph(b Bindings) (*workflow.Graph, error) {
	s := stages{b}
	return workflow.NewGraph(workflow.GraphSpec{
		Name:  GraphReportGeneration,
		Entry: StageLoadStructuredData,
		Seeds: []string{KeyVideoID, KeyFormatType, KeyInstructions},
		Stages: []workflow.Stage{
			{
				Name:       StageLoadStructuredData,
				InputKeys:  []string{KeyVideoID},
				OutputKeys: []string{KeyStructuredData},
				Capability: s.loadStructuredData,
				Retry:      b.Retry,
				Required:   true,
				Edges:      []workflow.Edge{workflow.Then(StageGenerateReport)},
			},
			{
				Name:              StageGenerateReport,
				InputKeys:         []string{KeyStructuredData, KeyFormatType},
				OptionalInputKeys: []string{KeyInstructions},
				OutputKeys:        []string{KeyReport},
				Capability:        s.generateReport,
				Retry:             b.Retry,
				Required:          true,
				Edges:             []workflow.Edge{workflow.Then(StageSaveReport)},
				Health:            probe(StageGenerateReport, b.ReportHealth),
			},
			{
				Name:              StageSaveReport,
				InputKeys:         []string{KeyVideoID, KeyReport},
				OptionalInputKeys: []string{KeyInstructions},
				OutputKeys:        []string{KeyReportID},
				Capability:        s.saveReport,
				Retry:             b.Retry,
				Required:          true,
			},
		},
	})
}

func transcriptPresent(r workflow.Reader) bool {
	transcript, ok, err := workflow.Lookup[TranscriptData](r, KeyTranscript)
	return err == nil && ok && strings.TrimSpace(transcript.Text) != ""
}

func probe(name string, check func(context.Context) error) func(context.Context) workflow.StageHealth {
	if check == nil {
		return nil
	}
	return func(ctx context.Context) workflow.StageHealth {
		if err := check(ctx); err != nil {
			return workflow.UnhealthyStage(name, err.Error())
		}
		return workflow.HealthyStage(name)
	}
}

type stages struct {
	Bindings
}

func (s stages) fetchMetadata(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	ref, err := workflow.Get[string](in, KeyVideoRef)
	if err != nil {
		return nil, err
	}
	meta, err := s.Transcripts.FetchMetadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return workflow.Outputs{KeyMetadata: meta}, nil
}

func (s stages) fetchTranscript(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	ref, err := workflow.Get[string](in, KeyVideoRef)
	if err != nil {
		return nil, err
	}
	lang, _, err := workflow.Lookup[string](in, KeyLanguage)
	if err != nil {
		return nil, err
	}
	transcript, err := s.Transcripts.FetchTranscript(ctx, ref, lang)
	if err != nil {
		return nil, err
	}
	return workflow.Outputs{KeyTranscript: TranscriptData{
		VideoID:   transcript.VideoID,
		Language:  transcript.Language,
		Generated: transcript.Generated,
		Text:      transcript.Text(),
	}}, nil
}

func (s stages) analyzeContent(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	transcript, err := workflow.Get[TranscriptData](in, KeyTranscript)
	if err != nil {
		return nil, err
	}
	meta, _, err := workflow.Lookup[youtube.Metadata](in, KeyMetadata)
	if err != nil {
		return nil, err
	}
	result, err := s.Analyzer.Analyze(ctx, transcript.Text, analysis.VideoInfo{
		Title:       meta.Title,
		ChannelName: meta.ChannelName,
	})
	if err != nil {
		return nil, err
	}
	return workflow.Outputs{KeyAnalysis: result}, nil
}

func (s stages) saveAnalysis(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	transcript, err := workflow.Get[TranscriptData](in, KeyTranscript)
	if err != nil {
		return nil, err
	}
	result, err := workflow.Get[analysis.Result](in, KeyAnalysis)
	if err != nil {
		return nil, err
	}
	meta, _, err := workflow.Lookup[youtube.Metadata](in, KeyMetadata)
	if err != nil {
		return nil, err
	}

	runID, _ := services.RunIDFromContext(ctx)
	video := &store.Video{
		YouTubeID:       transcript.VideoID,
		Title:           meta.Title,
		URL:             youtube.WatchURL(transcript.VideoID),
		ChannelName:     meta.ChannelName,
		PublishedAt:     meta.PublishedAt,
		DurationSeconds: meta.DurationSeconds,
		Language:        transcript.Language,
		Transcript:      transcript.Text,
		Summary:         result.Summary,
		Category:        result.Category,
		Topics:          result.Topics,
		Processed:       true,
		RunID:           runID,
	}
	if video.Title == "" {
		video.Title = "YouTube video " + transcript.VideoID
	}
	for _, segment := range result.Segments {
		video.Segments = append(video.Segments, store.Segment{
			StartTime:      float64(segment.StartTime),
			EndTime:        float64(segment.EndTime),
			Transcript:     segment.Transcript,
			Subcategory:    segment.Subcategory,
			ContentSummary: segment.ContentSummary,
			Keywords:       segment.Keywords,
		})
	}
	id, err := s.Results.SaveAnalysis(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	return workflow.Outputs{KeyVideoID: id}, nil
}

func (s stages) loadStructuredData(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	const op = "load structured data"
	id, err := workflow.Get[int64](in, KeyVideoID)
	if err != nil {
		return nil, err
	}
	video, err := s.Results.GetVideo(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, StageLoadStructuredData, op, fmt.Sprintf("video %d does not exist", id), err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !video.Processed || (strings.TrimSpace(video.Summary) == "" && len(video.Segments) == 0) {
		return nil, services.Wrap(services.ErrNotFound, StageLoadStructuredData, op, fmt.Sprintf("video %d has no analysis", id), nil)
	}

	source := report.Source{
		VideoTitle: video.Title,
		Summary:    video.Summary,
		Category:   video.Category,
		Topics:     video.Topics,
	}
	for _, segment := range video.Segments {
		source.Segments = append(source.Segments, analysis.Segment{
			StartTime:      analysis.Seconds(segment.StartTime),
			EndTime:        analysis.Seconds(segment.EndTime),
			Transcript:     segment.Transcript,
			Subcategory:    segment.Subcategory,
			ContentSummary: segment.ContentSummary,
			Keywords:       segment.Keywords,
		})
	}
	return workflow.Outputs{KeyStructuredData: source}, nil
}

func (s stages) generateReport(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	source, err := workflow.Get[report.Source](in, KeyStructuredData)
	if err != nil {
		return nil, err
	}
	format, err := workflow.Get[string](in, KeyFormatType)
	if err != nil {
		return nil, err
	}
	instructions, _, err := workflow.Lookup[string](in, KeyInstructions)
	if err != nil {
		return nil, err
	}
	generated, err := s.Reports.Generate(ctx, source, format, instructions)
	if err != nil {
		return nil, err
	}
	return workflow.Outputs{KeyReport: generated}, nil
}

func (s stages) saveReport(ctx context.Context, in workflow.View) (workflow.Outputs, error) {
	videoID, err := workflow.Get[int64](in, KeyVideoID)
	if err != nil {
		return nil, err
	}
	generated, err := workflow.Get[report.Report](in, KeyReport)
	if err != nil {
		return nil, err
	}
	instructions, _, err := workflow.Lookup[string](in, KeyInstructions)
	if err != nil {
		return nil, err
	}
	runID, _ := services.RunIDFromContext(ctx)
	id, err := s.Results.SaveReport(ctx, &store.Report{
		VideoID:      videoID,
		Title:        generated.Title,
		FormatType:   string(generated.FormatType),
		Content:      generated.Content,
		Instructions: strings.TrimSpace(instructions),
		RunID:        runID,
	})
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	return workflow.Outputs{KeyReportID: id}, nil
}
