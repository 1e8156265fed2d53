package pipeline

import (
	"context"
	"strings"

	"ytreport/internal/services"
	"ytreport/internal/workflow"
	"ytreport/internal/youtube"
)

// Service is the caller-facing entry point of the engine. Start methods
// return as soon as the run is persisted; progress is observed by polling
// GetRunState.
type Service struct {
	manager *workflow.Manager
}

// NewService wraps a manager whose executor has both pipeline graphs
// registered.
func NewService(manager *workflow.Manager) *Service {
	return &Service{manager: manager}
}

// Manager exposes the underlying worker pool.
func (s *Service) Manager() *workflow.Manager {
	return s.manager
}

// SubmitOption adjusts a video processing submission.
type SubmitOption func(map[string]any)

// WithLanguage sets the preferred transcript language for one run.
func WithLanguage(lang string) SubmitOption {
	return func(seeds map[string]any) {
		if lang = strings.TrimSpace(lang); lang != "" {
			seeds[KeyLanguage] = lang
		}
	}
}

// StartVideoProcessing queues a video processing run. A reference that holds
// no recognizable video id is rejected with invalid_input before a run is
// created.
func (s *Service) StartVideoProcessing(ctx context.Context, videoRef string, opts ...SubmitOption) (string, error) {
	id, err := youtube.ExtractVideoID(videoRef)
	if err != nil {
		return "", err
	}
	seeds := map[string]any{KeyVideoRef: id}
	for _, opt := range opts {
		opt(seeds)
	}
	return s.manager.Submit(ctx, GraphVideoProcessing, seeds)
}

// StartReportGeneration queues a report run for a stored video. The format
// is validated by the generate_report stage, so an unsupported format yields
// a failed run rather than a submission error.
func (s *Service) StartReportGeneration(ctx context.Context, videoID int64, format, instructions string) (string, error) {
	if videoID <= 0 {
		return "", services.Wrap(services.ErrInvalidInput, "", "start report generation", "video id must be positive", nil)
	}
	seeds := map[string]any{
		KeyVideoID:    videoID,
		KeyFormatType: strings.TrimSpace(format),
	}
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		seeds[KeyInstructions] = instructions
	}
	return s.manager.Submit(ctx, GraphReportGeneration, seeds)
}

// GetRunState returns the latest checkpoint of a run.
func (s *Service) GetRunState(ctx context.Context, runID string) (*workflow.RunState, error) {
	return s.manager.GetRunState(ctx, runID)
}

// ListRuns returns runs filtered by status.
func (s *Service) ListRuns(ctx context.Context, statuses ...workflow.RunStatus) ([]*workflow.RunState, error) {
	return s.manager.ListRuns(ctx, statuses...)
}

// CancelRun requests cancellation of a run.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	if _, err := s.manager.GetRunState(ctx, runID); err != nil {
		return err
	}
	return s.manager.Cancel(ctx, runID)
}

// ResumeRun executes an interrupted run synchronously from its checkpoint.
func (s *Service) ResumeRun(ctx context.Context, runID string) (*workflow.RunState, error) {
	return s.manager.Resume(ctx, runID)
}

// Status reports worker pool diagnostics and stage health.
func (s *Service) Status(ctx context.Context) workflow.StatusSummary {
	return s.manager.Status(ctx)
}
