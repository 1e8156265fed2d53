// Package store persists workflow runs and their results in SQLite.
//
// The runs table backs the workflow manager: pending runs wait there in
// submission order, running runs carry a heartbeat, and every checkpoint
// rewrites the serialized RunState. The status column is authoritative; the
// JSON snapshot carries the context and attempt history.
//
// Videos, their analysed segments and generated reports live alongside the
// runs so the report pipeline can load a structured analysis without
// consulting the run that produced it.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package store
