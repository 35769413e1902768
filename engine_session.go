package widgetAuth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/widgetAuth/audit"
	"github.com/MrEthical07/widgetAuth/jwt"
	"github.com/MrEthical07/widgetAuth/session"
)

// Verify checks a widget credential and the live session behind it.
//
// A credential with a valid signature is still rejected when its session is
// gone, expired, owned by a different partner or cannot be read in time.
// Store outages therefore reject instead of admitting.
func (e *Engine) Verify(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.Parse(token)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return nil, reject(ErrInvalidToken)
	}

	rec, err := e.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		if errors.Is(err, session.ErrStoreUnavailable) {
			e.metricInc(MetricSessionStoreFailure)
		}
		return nil, reject(ErrSessionInvalid)
	}

	if rec.PartnerID != claims.PartnerID || (claims.UserID != "" && claims.UserID != rec.UserID) {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionRejected,
			partnerID: claims.PartnerID,
			sessionID: claims.SessionID,
			severity:  audit.SeverityCritical,
			err:       ErrSessionInvalid,
		})
		return nil, reject(ErrSessionInvalid)
	}

	e.metricInc(MetricVerifySuccess)

	res := &AuthResult{
		SessionID:   rec.SessionID,
		PartnerID:   rec.PartnerID,
		UserID:      rec.UserID,
		Permissions: append([]string(nil), claims.Permissions...),
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

// BindUser attaches an end user to the session behind token and returns a
// fresh credential carrying the user id. The old credential stays valid
// until it expires or the session is invalidated.
func (e *Engine) BindUser(ctx context.Context, token, userID string) (*AuthenticateResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, reject(ErrInvalidRequest)
	}

	res, err := e.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	rec, err := e.sessions.BindUser(ctx, res.SessionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUserAlreadyBound):
			return nil, reject(ErrInvalidRequest)
		case errors.Is(err, session.ErrStoreUnavailable):
			e.metricInc(MetricSessionStoreFailure)
			return nil, reject(ErrUnavailable)
		default:
			return nil, reject(ErrSessionInvalid)
		}
	}

	issued, expiresAt, err := e.tokens.Issue(jwt.IssueInput{
		SessionID:   rec.SessionID,
		PartnerID:   rec.PartnerID,
		UserID:      rec.UserID,
		Permissions: res.Permissions,
		NotAfter:    rec.ExpiresAt,
	})
	if err != nil {
		return nil, reject(ErrUnavailable)
	}

	e.metricInc(MetricUserBound)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventUserBound,
		success:   true,
		partnerID: rec.PartnerID,
		sessionID: rec.SessionID,
		metadata: func() map[string]string {
			return map[string]string{"user_id": rec.UserID}
		},
	})

	return &AuthenticateResult{
		Token:     issued,
		ExpiresAt: expiresAt,
		SessionID: rec.SessionID,
		PartnerID: rec.PartnerID,
	}, nil
}

// InvalidateSession deletes a session so every credential bound to it stops
// verifying immediately. Unknown session ids succeed.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return reject(ErrInvalidRequest)
	}

	if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
		e.metricInc(MetricSessionStoreFailure)
		return reject(ErrUnavailable)
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventSessionInvalidated,
		success:   true,
		sessionID: sessionID,
	})
	return nil
}

// SweepExpiredSessions deletes expired sessions now and returns how many
// were removed. [Engine.Start] runs the same sweep periodically.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.sessions.SweepExpired(ctx)
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricSessionSwept, uint64(n))
	}
	if err != nil {
		e.metricInc(MetricSessionStoreFailure)
		return n, reject(ErrUnavailable)
	}

	if n > 0 {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionsSwept,
			success:   true,
			resource:  "sessions",
			metadata: func() map[string]string {
				return map[string]string{"deleted": strconv.Itoa(n)}
			},
		})
	}
	return n, nil
}
