package store

import "time"

// Video is a processed YouTube video with its structured analysis.
type Video struct {
	ID              int64
	YouTubeID       string
	Title           string
	URL             string
	ChannelName     string
	PublishedAt     *time.Time
	DurationSeconds int
	Language        string
	Transcript      string
	Summary         string
	Category        string
	Topics          []string
	Processed       bool
	// RunID is the run that last wrote the analysis.
	RunID     string
	Segments  []Segment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is one time-bounded section of a video's analysis.
type Segment struct {
	ID             int64
	StartTime      float64
	EndTime        float64
	Transcript     string
	Subcategory    string
	ContentSummary string
	Keywords       []string
}

// Report is a generated document derived from a video's analysis.
type Report struct {
	ID           int64
	VideoID      int64
	VideoTitle   string
	Title        string
	FormatType   string
	Content      string
	Instructions string
	RunID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReportFilter narrows ListReports. Zero values match everything.
type ReportFilter struct {
	VideoID    int64
	FormatType string
	Limit      int
	Offset     int
}

// DatabaseHealth describes the database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}
