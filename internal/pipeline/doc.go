// Package pipeline binds the YouTube, analysis and report adapters to the
// workflow engine.
//
// Two graphs are registered with one executor:
//
//	video_processing:   fetch_metadata -> fetch_transcript -> analyze_content -> save_analysis
//	report_generation:  load_structured_data -> generate_report -> save_report
//
// fetch_metadata is the only non-required stage; when it fails the analysis
// proceeds without title and channel and the run ends partially_succeeded.
// Service exposes the asynchronous entry points used by the daemon and CLI.
package pipeline
