package widgetAuth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/internal/limiters"
	"github.com/MrEthical07/widgetAuth/jwt"
	"github.com/MrEthical07/widgetAuth/keyhash"
	"github.com/MrEthical07/widgetAuth/session"
)

// Authenticate exchanges a partner API key for a widget credential.
//
// The caller is first rate-limited by network address, fingerprint and,
// when the key is well formed, by key ID. The key is then verified against
// the partner record, the partner status and widget origin are checked, a
// session is created and a credential bound to it is issued.
//
// Every failure is a [*RejectionError]. Unknown keys, wrong secrets and
// malformed keys are all reported as [ErrInvalidCredential].
func (e *Engine) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthenticateResult, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	id := e.resolver.Resolve(req.Request)
	key, keyErr := keyhash.ParseAPIKey(req.APIKey)

	checks := make([]limiters.Check, 0, 3)
	checks = append(checks,
		limiters.Check{Layer: authLayer(LayerIP), Identifier: ipKey(id.Address)},
		limiters.Check{Layer: authLayer(LayerFingerprint), Identifier: fingerprintKey(id.Fingerprint)},
	)
	if keyErr == nil {
		checks = append(checks, limiters.Check{Layer: authLayer(LayerPartner), Identifier: partnerKey(key.KeyID)})
	}

	if decision := e.evaluate(checks); !decision.Allowed {
		e.metricInc(MetricAuthRateLimited)
		e.emitRateLimit(ctx, auditEventAuthRateLimited, decision, id.Address, "", "")
		return nil, decision.Err()
	}

	if keyErr != nil {
		return nil, e.authFailure(ctx, id, "", ErrInvalidCredential)
	}

	partner, err := e.lookupPartner(ctx, key.KeyID)
	if err != nil {
		return nil, e.authFailure(ctx, id, "", err)
	}

	ok, err := e.keys.Verify(key.Secret, partner.KeyHash)
	if err != nil || !ok {
		return nil, e.authFailure(ctx, id, partner.PartnerID, ErrInvalidCredential)
	}
	if partner.Status != PartnerActive {
		return nil, e.authFailure(ctx, id, partner.PartnerID, ErrPartnerInactive)
	}
	if !originAllowed(partner.AllowedOrigins, req.Origin) {
		return nil, e.authFailure(ctx, id, partner.PartnerID, ErrOriginNotAllowed)
	}

	rec, err := e.sessions.Create(ctx, session.CreateInput{
		PartnerID:      partner.PartnerID,
		CredentialHash: keyhash.Digest(key.String()),
		IPAddress:      id.Address,
		UserAgent:      id.UserAgent,
		Origin:         req.Origin,
	})
	if err != nil {
		e.metricInc(MetricSessionStoreFailure)
		return nil, e.authFailure(ctx, id, partner.PartnerID, ErrUnavailable)
	}
	e.metricInc(MetricSessionCreated)

	token, expiresAt, err := e.tokens.Issue(jwt.IssueInput{
		SessionID:   rec.SessionID,
		PartnerID:   partner.PartnerID,
		Permissions: partner.Permissions,
		NotAfter:    rec.ExpiresAt,
	})
	if err != nil {
		// A session nobody holds a credential for is useless; drop it.
		_ = e.sessions.Invalidate(context.WithoutCancel(ctx), rec.SessionID)
		return nil, e.authFailure(ctx, id, partner.PartnerID, ErrUnavailable)
	}

	e.metricInc(MetricAuthSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAuthSuccess,
		success:   true,
		partnerID: partner.PartnerID,
		sessionID: rec.SessionID,
		ip:        id.Address,
		metadata: func() map[string]string {
			return map[string]string{"origin": req.Origin}
		},
	})

	return &AuthenticateResult{
		Token:     token,
		ExpiresAt: expiresAt,
		SessionID: rec.SessionID,
		PartnerID: partner.PartnerID,
	}, nil
}

func (e *Engine) authFailure(ctx context.Context, id clientid.Identity, partnerID string, sentinel error) error {
	rej := reject(sentinel)
	e.metricInc(MetricAuthFailure)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAuthFailure,
		partnerID: partnerID,
		ip:        id.Address,
		err:       rej,
	})
	return rej
}

func (e *Engine) lookupPartner(ctx context.Context, keyID string) (PartnerRecord, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.config.PartnerLookupTimeout)
	defer cancel()

	partner, err := e.partners.GetPartnerByKeyID(lookupCtx, keyID)
	if err != nil {
		if errors.Is(err, ErrPartnerNotFound) {
			return PartnerRecord{}, ErrInvalidCredential
		}
		return PartnerRecord{}, ErrUnavailable
	}
	if partner.PartnerID == "" || partner.KeyHash == "" {
		return PartnerRecord{}, ErrInvalidCredential
	}
	return partner, nil
}

// originAllowed matches origins exactly, ignoring case and a trailing slash.
// An empty allow-list admits every origin.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if normalizeOrigin(a) == origin {
			return true
		}
	}
	return false
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
}
