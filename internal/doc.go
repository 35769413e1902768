// Package internal contains helper utilities that are private to widgetAuth,
// chiefly secure random identifiers.
//
// # Sub-packages
//
//   - config: server binary configuration (env + TOML policy file)
//   - limiters: multi-layer rate limiter composed of named counters
//   - rate: in-memory fixed-window counter
//
// # What this package must NOT do
//
//   - Export types that appear in the public widgetAuth API.
//   - Be imported by any package outside the widgetAuth module.
package internal
