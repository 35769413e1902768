package internaldefs

import (
	widgetAuth "github.com/MrEthical07/widgetAuth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   widgetAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   widgetAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter.
var CounterDefs = []CounterDef{
	{ID: widgetAuth.MetricAuthSuccess, Name: "widgetauth_auth_success_total", Help: "Widget sessions opened with a partner API key."},
	{ID: widgetAuth.MetricAuthFailure, Name: "widgetauth_auth_failure_total", Help: "Authentication attempts rejected after the rate gate."},
	{ID: widgetAuth.MetricAuthRateLimited, Name: "widgetauth_auth_rate_limited_total", Help: "Authentication attempts denied by a rate-limit layer."},
	{ID: widgetAuth.MetricVerifySuccess, Name: "widgetauth_verify_success_total", Help: "Widget credentials accepted."},
	{ID: widgetAuth.MetricVerifyFailure, Name: "widgetauth_verify_failure_total", Help: "Widget credentials rejected."},
	{ID: widgetAuth.MetricSessionCreated, Name: "widgetauth_session_created_total", Help: "Created widget sessions."},
	{ID: widgetAuth.MetricSessionInvalidated, Name: "widgetauth_session_invalidated_total", Help: "Explicitly invalidated widget sessions."},
	{ID: widgetAuth.MetricSessionSwept, Name: "widgetauth_session_swept_total", Help: "Expired widget sessions removed by the sweeper."},
	{ID: widgetAuth.MetricSessionStoreFailure, Name: "widgetauth_session_store_failure_total", Help: "Operations failed closed because the session store was unavailable."},
	{ID: widgetAuth.MetricUserBound, Name: "widgetauth_user_bound_total", Help: "End users bound to widget sessions."},
	{ID: widgetAuth.MetricAccountCreationAllowed, Name: "widgetauth_account_creation_allowed_total", Help: "Account-creation checks that passed every layer."},
	{ID: widgetAuth.MetricAccountCreationRateLimited, Name: "widgetauth_account_creation_rate_limited_total", Help: "Account-creation checks denied by a layer."},
	{ID: widgetAuth.MetricAdHocRateLimited, Name: "widgetauth_adhoc_rate_limited_total", Help: "Caller-defined rate-limit checks denied."},
	{ID: widgetAuth.MetricRateLimitHit, Name: "widgetauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: widgetAuth.MetricVerifyLatency, Name: "widgetauth_verify_latency_seconds", Help: "Verify latency histogram."},
}

// Audit metric names. Outcomes are labeled with audit.Outcome strings.
const (
	AuditDroppedName = "widgetauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
	AuditOutcomeName = "widgetauth_audit_delivery_total"
	AuditOutcomeHelp = "Audit deliveries by outcome."
	AuditOutcomeKey  = "outcome"
)

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds in metric-name-safe form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
