package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a workflow run in a transport-friendly format.
type Run struct {
	ID           string            `json:"id"`
	Graph        string            `json:"graph"`
	Status       string            `json:"status"`
	CurrentStage string            `json:"currentStage,omitempty"`
	Stages       map[string]string `json:"stages"`
	History      []StageAttempt    `json:"history"`
	Context      []ContextEntry    `json:"context,omitempty"`
	Degraded     bool              `json:"degraded"`
	FailedStage  string            `json:"failedStage,omitempty"`
	ErrorKind    string            `json:"errorKind,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ErrorHint    string            `json:"errorHint,omitempty"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

// StageAttempt is one entry of a run's audit trail.
type StageAttempt struct {
	Stage        string `json:"stage"`
	Attempt      int    `json:"attempt"`
	Outcome      string `json:"outcome"`
	StartedAt    string `json:"startedAt,omitempty"`
	EndedAt      string `json:"endedAt,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ContextEntry exposes one run context value and the stage that wrote it.
type ContextEntry struct {
	Key    string          `json:"key"`
	Writer string          `json:"writer"`
	Value  json.RawMessage `json:"value"`
}

// Video is a stored video with its analysis.
type Video struct {
	ID              int64     `json:"id"`
	YouTubeID       string    `json:"youtubeId"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	ChannelName     string    `json:"channelName,omitempty"`
	PublishedAt     string    `json:"publishedAt,omitempty"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	Language        string    `json:"language,omitempty"`
	Summary         string    `json:"summary"`
	Category        string    `json:"category"`
	Topics          []string  `json:"topics"`
	Processed       bool      `json:"processed"`
	RunID           string    `json:"runId,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
	Segments        []Segment `json:"segments,omitempty"`
	CreatedAt       string    `json:"createdAt,omitempty"`
	UpdatedAt       string    `json:"updatedAt,omitempty"`
}

// Segment is one section of a video analysis.
type Segment struct {
	ID             int64    `json:"id"`
	StartTime      float64  `json:"startTime"`
	EndTime        float64  `json:"endTime"`
	Transcript     string   `json:"transcript,omitempty"`
	Subcategory    string   `json:"subcategory"`
	ContentSummary string   `json:"contentSummary"`
	Keywords       []string `json:"keywords"`
}

// Report is a generated report.
type Report struct {
	ID                 int64  `json:"id"`
	VideoID            int64  `json:"videoId"`
	VideoTitle         string `json:"videoTitle,omitempty"`
	Title              string `json:"title"`
	FormatType         string `json:"formatType"`
	Content            string `json:"content,omitempty"`
	CustomInstructions string `json:"customInstructions,omitempty"`
	RunID              string `json:"runId,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveRuns  []string       `json:"activeRuns"`
	RunStats    map[string]int `json:"runStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastRun     *Run           `json:"lastRun,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DatabaseStatus summarizes the database health check.
type DatabaseStatus struct {
	Path          string   `json:"path"`
	Readable      bool     `json:"readable"`
	SchemaVersion int      `json:"schemaVersion"`
	Integrity     bool     `json:"integrity"`
	MissingTables []string `json:"missingTables,omitempty"`
	TotalRuns     int      `json:"totalRuns"`
	Error         string   `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Database     DatabaseStatus `json:"database"`
}

// ProcessVideoRequest starts a video processing run.
type ProcessVideoRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// GenerateReportRequest starts a report generation run.
type GenerateReportRequest struct {
	VideoID            int64  `json:"videoId"`
	FormatType         string `json:"formatType"`
	CustomInstructions string `json:"customInstructions,omitempty"`
}

// RunSubmittedResponse acknowledges a queued run.
type RunSubmittedResponse struct {
	RunID string `json:"runId"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// VideoResponse wraps a single video.
type VideoResponse struct {
	Video Video `json:"video"`
}

// VideoListResponse wraps a collection of videos.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// ReportResponse wraps a single report.
type ReportResponse struct {
	Report Report `json:"report"`
}

// ReportListResponse wraps a collection of reports.
type ReportListResponse struct {
	Reports []Report `json:"reports"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}
