package widgetAuth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/widgetAuth/internal/limiters"
)

// Layer names reported in [RateDecision] and [RejectionError].
const (
	LayerIP              = "ip"
	LayerFingerprint     = "fingerprint"
	LayerPartner         = "partner"
	LayerPartnerCreation = "partner_creation"
	LayerEmail           = "email"
	LayerSession         = "session"
	LayerPartnerBurst    = "partner_burst"
)

// Counters are namespaced per policy so the same dimension never shares a
// budget across policies, and caller-defined layers cannot reach static ones.
const (
	authNamespace     = "auth:"
	creationNamespace = "account_creation:"
	adHocNamespace    = "adhoc:"
)

func authLayer(name string) string     { return authNamespace + name }
func creationLayer(name string) string { return creationNamespace + name }
func adHocLayer(name string) string    { return adHocNamespace + name }

func ipKey(addr string) string         { return "ip:" + addr }
func fingerprintKey(fp string) string  { return "fp:" + fp }
func partnerKey(id string) string      { return "partner:" + id }
func sessionKey(id string) string      { return "session:" + id }
func emailKey(email string) string     { return "email:" + normalizeEmail(email) }
func normalizeEmail(raw string) string { return strings.ToLower(strings.TrimSpace(raw)) }

// Err returns nil for allowed decisions and a rate-limit [RejectionError]
// otherwise.
func (d RateDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return rateLimited(d.Layer, d.RetryAfter)
}

// CheckAccountCreation runs the account-creation gate for req. Layers are
// evaluated in order (network address, partner, partner creation, email,
// session, partner burst) and evaluation stops at the first denial. The
// email and session layers are skipped when those fields are empty.
//
// A denial is reported through the returned decision; use
// [RateDecision.Err] to turn it into an error. The error return is reserved
// for invalid input.
func (e *Engine) CheckAccountCreation(ctx context.Context, req AccountCreationRequest) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" {
		return RateDecision{}, reject(ErrInvalidRequest)
	}

	id := e.resolver.Resolve(req.Request)

	checks := make([]limiters.Check, 0, 6)
	checks = append(checks,
		limiters.Check{Layer: creationLayer(LayerIP), Identifier: ipKey(id.Address)},
		limiters.Check{Layer: creationLayer(LayerPartner), Identifier: partnerKey(partnerID)},
		limiters.Check{Layer: creationLayer(LayerPartnerCreation), Identifier: partnerKey(partnerID)},
	)
	if normalizeEmail(req.Email) != "" {
		checks = append(checks, limiters.Check{Layer: creationLayer(LayerEmail), Identifier: emailKey(req.Email)})
	}
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		checks = append(checks, limiters.Check{Layer: creationLayer(LayerSession), Identifier: sessionKey(sid)})
	}
	checks = append(checks, limiters.Check{Layer: creationLayer(LayerPartnerBurst), Identifier: partnerKey(partnerID)})

	decision := e.evaluate(checks)
	if decision.Allowed {
		e.metricInc(MetricAccountCreationAllowed)
		return decision, nil
	}

	e.metricInc(MetricAccountCreationRateLimited)
	e.emitRateLimit(ctx, auditEventAccountCreationRateLimited, decision, id.Address, partnerID, req.SessionID)
	return decision, nil
}

// CheckLimits evaluates caller-defined layers in order, stopping at the first
// denial. Every check needs a layer name and an identifier. Bounds are
// clamped and the first call for a layer name fixes them. At most
// RateLimitConfig.AdHocMaxLayers names are tracked; a new name past that cap
// is denied at its own layer without consuming any budget.
func (e *Engine) CheckLimits(ctx context.Context, checks []RateCheck) (RateDecision, error) {
	if e == nil || e.limiter == nil {
		return RateDecision{}, ErrEngineNotReady
	}
	if len(checks) == 0 {
		return RateDecision{}, reject(ErrInvalidRequest)
	}

	mapped := make([]limiters.Check, 0, len(checks))
	for _, c := range checks {
		if strings.TrimSpace(c.Layer) == "" || c.Identifier == "" {
			return RateDecision{}, reject(ErrInvalidRequest)
		}
		mapped = append(mapped, limiters.Check{
			Layer:      adHocLayer(c.Layer),
			Identifier: c.Identifier,
			Window:     c.Window,
			Max:        c.Max,
		})
	}

	decision := e.evaluate(mapped)
	if !decision.Allowed {
		e.metricInc(MetricAdHocRateLimited)
		e.emitRateLimit(ctx, auditEventRateLimitTriggered, decision, "", "", "")
	}
	return decision, nil
}

// RateLimitState reports the current count and window reset of one static
// layer for identifier without recording an attempt. policy is "auth" or
// "account_creation".
func (e *Engine) RateLimitState(policy, layer, identifier string) (count int, resetAt time.Time, ok bool) {
	if e == nil || e.limiter == nil {
		return 0, time.Time{}, false
	}
	c, found := e.limiter.Layer(policy + ":" + layer)
	if !found {
		return 0, time.Time{}, false
	}
	return c.Peek(identifier)
}

func (e *Engine) evaluate(checks []limiters.Check) RateDecision {
	res := e.limiter.CheckAll(checks)
	decision := RateDecision{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}
	if !res.Allowed {
		decision.Layer = layerName(res.FailedLayer)
		decision.RetryAfter = retryAfter(res.ResetAt, e.clock.Now())
		e.metricInc(MetricRateLimitHit)
	}
	return decision
}

// retryAfter rounds the wait up to whole seconds, never below one.
func retryAfter(resetAt, now time.Time) time.Duration {
	wait := resetAt.Sub(now)
	if wait <= time.Second {
		return time.Second
	}
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	return wait
}
