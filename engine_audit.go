package widgetAuth

import (
	"context"
	"strconv"

	"github.com/MrEthical07/widgetAuth/audit"
)

const (
	auditEventAuthSuccess                = "widget_auth_success"
	auditEventAuthFailure                = "widget_auth_failure"
	auditEventAuthRateLimited            = "widget_auth_rate_limited"
	auditEventSessionRejected            = "widget_session_rejected"
	auditEventSessionInvalidated         = "widget_session_invalidated"
	auditEventUserBound                  = "widget_user_bound"
	auditEventAccountCreationRateLimited = "account_creation_rate_limited"
	auditEventRateLimitTriggered         = "rate_limit_triggered"
	auditEventSessionsSwept              = "widget_sessions_swept"
)

type auditRecord struct {
	eventType string
	success   bool
	partnerID string
	sessionID string
	ip        string
	resource  string
	severity  audit.Severity
	err       error
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if r.metadata != nil {
		metadata = r.metadata()
	}

	actor := r.partnerID
	if actor == "" && r.ip != "" {
		actor = ipKey(r.ip)
	}
	resource := r.resource
	if resource == "" {
		resource = r.sessionID
	}

	event := audit.Event{
		EventType: r.eventType,
		Severity:  auditSeverity(r),
		Timestamp: e.clock.Now().UTC(),
		Actor:     actor,
		Resource:  resource,
		SessionID: r.sessionID,
		PartnerID: r.partnerID,
		IP:        r.ip,
		Success:   r.success,
		Metadata:  metadata,
	}
	if r.err != nil {
		event.Reason = reasonFor(r.err)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, eventType string, d RateDecision, ip, partnerID, sessionID string) {
	e.emitAudit(ctx, auditRecord{
		eventType: eventType,
		partnerID: partnerID,
		sessionID: sessionID,
		ip:        ip,
		resource:  d.Layer,
		err:       ErrRateLimited,
		metadata: func() map[string]string {
			return map[string]string{
				"layer":       d.Layer,
				"retry_after": strconv.Itoa(int(d.RetryAfter.Seconds())),
			}
		},
	})
}

func auditSeverity(r auditRecord) audit.Severity {
	if r.severity != "" {
		return r.severity
	}
	switch r.eventType {
	case auditEventSessionRejected, auditEventAuthFailure, auditEventAuthRateLimited,
		auditEventAccountCreationRateLimited, auditEventRateLimitTriggered:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}
