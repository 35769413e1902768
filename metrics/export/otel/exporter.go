package otel

import (
	"context"
	"errors"
	"fmt"

	widgetAuth "github.com/MrEthical07/widgetAuth"
	"github.com/MrEthical07/widgetAuth/audit"
	"github.com/MrEthical07/widgetAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() widgetAuth.MetricsSnapshot
	AuditDropped() uint64
}

type auditCounter interface {
	AuditCounts() audit.OutcomeCounts
}

type observedCounter struct {
	id         widgetAuth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      widgetAuth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

var (
	outcomePrimary  = metric.WithAttributes(attribute.String(internaldefs.AuditOutcomeKey, "primary"))
	outcomeFallback = metric.WithAttributes(attribute.String(internaldefs.AuditOutcomeKey, "fallback"))
	outcomeFailed   = metric.WithAttributes(attribute.String(internaldefs.AuditOutcomeKey, "failed"))
)

// OTelExporter publishes widgetAuth metrics as OTel observable instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	auditOutcome metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *widgetAuth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter and a single
// callback that reads source on every collection.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+2)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := 0; i < len(internaldefs.HistogramBoundSuffix); i++ {
			name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	if _, ok := source.(auditCounter); ok {
		auditOutcome, err := meter.Int64ObservableCounter(
			internaldefs.AuditOutcomeName,
			metric.WithDescription(internaldefs.AuditOutcomeHelp),
		)
		if err != nil {
			return nil, fmt.Errorf("create audit outcome counter: %w", err)
		}
		exporter.auditOutcome = auditOutcome
		observables = append(observables, auditOutcome)
	}

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[h.id])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		for i := 0; i < len(cumulative); i++ {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.auditOutcome != nil {
		counts := e.source.(auditCounter).AuditCounts()
		observer.ObserveInt64(e.auditOutcome, int64(counts.Primary), outcomePrimary)
		observer.ObserveInt64(e.auditOutcome, int64(counts.Fallback), outcomeFallback)
		observer.ObserveInt64(e.auditOutcome, int64(counts.Failed), outcomeFailed)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
