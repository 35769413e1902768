// Package prometheus renders widgetAuth metrics in Prometheus text format.
//
// [NewPrometheusExporter] wraps a [widgetAuth.Engine] and serves counters
// named widgetauth_*_total, the widgetauth_verify_latency_seconds histogram
// and audit delivery outcomes labeled by outcome.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
