package pipeline

// Graph names.
const (
	GraphVideoProcessing  = "video_processing"
	GraphReportGeneration = "report_generation"
)

// Stage names.
const (
	StageFetchMetadata      = "fetch_metadata"
	StageFetchTranscript    = "fetch_transcript"
	StageAnalyzeContent     = "analyze_content"
	StageSaveAnalysis       = "save_analysis"
	StageLoadStructuredData = "load_structured_data"
	StageGenerateReport     = "generate_report"
	StageSaveReport         = "save_report"
)

// Run context keys.
const (
	KeyVideoRef       = "video_ref"
	KeyLanguage       = "language"
	KeyMetadata       = "metadata"
	KeyTranscript     = "transcript"
	KeyAnalysis       = "analysis"
	KeyVideoID        = "video_id"
	KeyFormatType     = "format_type"
	KeyInstructions   = "custom_instructions"
	KeyStructuredData = "structured_data"
	KeyReport         = "report"
	KeyReportID       = "report_id"
)

// TranscriptData is the transcript as carried in the run context.
type TranscriptData struct {
	VideoID   string `json:"video_id"`
	Language  string `json:"language"`
	Generated bool   `json:"generated"`
	Text      string `json:"text"`
}
