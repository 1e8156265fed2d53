package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytreport/internal/api"
	"ytreport/internal/config"
	"ytreport/internal/logging"
	"ytreport/internal/pipeline"
	"ytreport/internal/services"
	"ytreport/internal/store"
	"ytreport/internal/workflow"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxBodyBytes    = 1 << 20
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	token := strings.TrimSpace(cfg.Paths.APIToken)

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, h))
	}
	route("GET /api/status", srv.handleStatus)
	route("POST /api/videos", srv.handleSubmitVideo)
	route("GET /api/videos", srv.handleListVideos)
	route("GET /api/videos/{id}", srv.handleGetVideo)
	route("DELETE /api/videos/{id}", srv.handleDeleteVideo)
	route("POST /api/reports", srv.handleSubmitReport)
	route("GET /api/reports", srv.handleListReports)
	route("GET /api/reports/{id}", srv.handleGetReport)
	route("DELETE /api/reports/{id}", srv.handleDeleteReport)
	route("GET /api/runs", srv.handleListRuns)
	route("GET /api/runs/{id}", srv.handleGetRun)
	route("POST /api/runs/{id}/cancel", srv.handleCancelRun)

	srv.server = &http.Server{
		Handler:           srv.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.log().Info("api server disabled", logging.String(logging.FieldEventType, "api_disabled"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

// withRequestID tags every request with an id, echoed in X-Request-ID and
// carried on the context into log lines.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Database:     api.FromDatabaseHealth(status.Database),
	})
}

func (s *apiServer) handleSubmitVideo(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessVideoRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	runID, err := s.daemon.service.StartVideoProcessing(r.Context(), req.URL, pipeline.WithLanguage(req.Language))
	if err != nil {
		s.writeServiceError(w, r, "submit video", err)
		return
	}
	s.logRequest(r, "video processing submitted", logging.String(logging.FieldRunID, runID))
	s.writeJSON(w, http.StatusAccepted, api.RunSubmittedResponse{RunID: runID})
}

func (s *apiServer) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateReportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	runID, err := s.daemon.service.StartReportGeneration(r.Context(), req.VideoID, req.FormatType, req.CustomInstructions)
	if err != nil {
		s.writeServiceError(w, r, "submit report", err)
		return
	}
	s.logRequest(r, "report generation submitted", logging.String(logging.FieldRunID, runID))
	s.writeJSON(w, http.StatusAccepted, api.RunSubmittedResponse{RunID: runID})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), services.KindInvalidInput)
		return
	}
	runs, err := s.daemon.service.ListRuns(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, r, "list runs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: api.FromRunStates(runs)})
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.daemon.service.GetRunState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "get run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: api.FromRunState(state, api.WithDetail())})
}

func (s *apiServer) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.daemon.service.CancelRun(r.Context(), runID); err != nil {
		s.writeServiceError(w, r, "cancel run", err)
		return
	}
	s.logRequest(r, "run cancellation requested", logging.String(logging.FieldRunID, runID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListVideos(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.page(w, r)
	if !ok {
		return
	}
	videos, err := s.daemon.store.ListVideos(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, "list videos", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoListResponse{Videos: api.FromVideos(videos)})
}

func (s *apiServer) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	video, err := s.daemon.store.GetVideo(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "get video", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoResponse{Video: api.FromVideo(video, api.WithDetail())})
}

func (s *apiServer) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.store.DeleteVideo(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "delete video", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.page(w, r)
	if !ok {
		return
	}
	filter := store.ReportFilter{
		FormatType: strings.TrimSpace(r.URL.Query().Get("format_type")),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("video_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, http.StatusBadRequest, "video_id must be a positive integer", services.KindInvalidInput)
			return
		}
		filter.VideoID = id
	}
	reports, err := s.daemon.store.ListReports(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, "list reports", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportListResponse{Reports: api.FromReports(reports)})
}

func (s *apiServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	report, err := s.daemon.store.GetReport(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "get report", err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReportResponse{Report: api.FromReport(report, api.WithDetail())})
}

func (s *apiServer) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.store.DeleteReport(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), services.KindInvalidInput)
		return false
	}
	return true
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "id must be a positive integer", services.KindInvalidInput)
		return 0, false
	}
	return id, true
}

func (s *apiServer) page(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	limit, offset := defaultPageSize, 0
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer", services.KindInvalidInput)
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", services.KindInvalidInput)
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func parseStatuses(values []string) ([]workflow.RunStatus, error) {
	var statuses []workflow.RunStatus
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := workflow.ParseRunStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown run status %q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// httpStatusFor maps an error class to a response code.
func httpStatusFor(err error) int {
	if errors.Is(err, workflow.ErrRunActive) {
		return http.StatusConflict
	}
	switch services.KindOf(err) {
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := httpStatusFor(err)
	kind := services.KindOf(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Error("api request failed",
			logging.String("operation", op),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error(), kind)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string, kind services.Kind) {
	resp := api.ErrorResponse{Error: message, Kind: string(kind)}
	if kind != "" {
		resp.Hint = services.Hint(kind)
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) logRequest(r *http.Request, msg string, attrs ...logging.Attr) {
	logging.WithContext(r.Context(), s.log()).Info(msg, logging.Args(attrs...)...)
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
