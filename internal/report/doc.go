// Package report renders a stored video analysis into a human-readable
// document through one LLM call.
//
// Five formats are supported (summary, detailed, presentation, markdown and
// bullet_points). An unknown format is an invalid_input error and is never
// sent to the model.
package report
