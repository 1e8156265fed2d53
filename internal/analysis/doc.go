// Package analysis turns a video transcript into a structured analysis
// (summary, category, topics and time-bounded segments) through one LLM call.
//
// The model is asked for a JSON object; the reply is decoded from the first
// '{' to the last '}' so surrounding prose or code fences are tolerated.
// Replies that hold no object, do not decode, or lack a summary are treated
// as upstream rejections.
package analysis
