// Package audit records security-relevant widget events with best-effort,
// never-blocking delivery.
//
// # Components
//
//   - [Event]: structured record with an integrity hash over its stable fields.
//   - [Sink]: destination interface; Redis stream, Kafka, SQLite, JSON lines,
//     channel and no-op implementations are provided.
//   - [Emitter]: two-stage delivery (primary, then fallback) with typed
//     [Outcome] values instead of swallowed errors.
//   - [Dispatcher]: buffered async relay in front of an Emitter.
//
// # Architecture boundaries
//
// This package owns delivery. It does NOT decide which events to emit; that
// belongs to the widgetAuth engine.
//
// The integrity hash is tamper evidence, not encryption: recomputing it with
// [Verify] detects edits to the hashed fields of a stored record.
//
// # What this package must NOT do
//
//   - Return delivery errors into request handling.
//   - Import widgetAuth or any sibling package.
package audit
