// Package otel binds widgetAuth metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter,
// one Int64ObservableGauge per histogram bucket and a counter for audit
// delivery outcomes. A single callback reads [widgetAuth.Engine.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
