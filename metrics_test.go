package widgetAuth

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricAuthSuccess)

	if got := m.Value(MetricAuthSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricAuthSuccess)
	m.Observe(MetricVerifyLatency, time.Millisecond)
	if m.Enabled() || m.Value(MetricAuthSuccess) != 0 {
		t.Fatal("nil metrics must be inert")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricVerifySuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricVerifySuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsAdd(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Add(MetricSessionSwept, 7)
	m.Add(MetricSessionSwept, 0)
	if got := m.Value(MetricSessionSwept); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}
	// Only the verify histogram exists.
	m.Observe(MetricAuthSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricAuthFailure)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricAuthFailure] != 1 {
		t.Fatalf("expected MetricAuthFailure=1, got %d", snap.Counters[MetricAuthFailure])
	}
	if _, ok := snap.Histograms[MetricVerifyLatency]; ok {
		t.Fatal("histogram must be absent when latency is disabled")
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("latency id must not appear as a counter")
	}
}
