package widgetAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/widgetAuth/clientid"
)

// PartnerStatus is the lifecycle state of a partner.
type PartnerStatus uint8

const (
	// PartnerActive partners may authenticate widgets.
	PartnerActive PartnerStatus = iota
	// PartnerSuspended partners are temporarily refused.
	PartnerSuspended
	// PartnerDisabled partners are permanently refused.
	PartnerDisabled
)

func (s PartnerStatus) String() string {
	switch s {
	case PartnerActive:
		return "active"
	case PartnerSuspended:
		return "suspended"
	case PartnerDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// PartnerRecord is what a [PartnerProvider] knows about one API key.
type PartnerRecord struct {
	PartnerID string
	// KeyHash is the argon2id PHC string of the key secret.
	KeyHash string
	Status  PartnerStatus
	// AllowedOrigins lists exact widget origins. Empty allows any origin.
	AllowedOrigins []string
	Permissions    []string
}

// PartnerProvider resolves API key IDs to partners. Implementations return
// [ErrPartnerNotFound] for unknown key IDs; any other error is treated as
// an outage.
type PartnerProvider interface {
	GetPartnerByKeyID(ctx context.Context, keyID string) (PartnerRecord, error)
}

// AuthenticateRequest is the input of [Engine.Authenticate].
type AuthenticateRequest struct {
	APIKey  string
	Origin  string
	Request clientid.Request
}

// AuthenticateResult is returned by a successful [Engine.Authenticate].
type AuthenticateResult struct {
	Token     string
	ExpiresAt time.Time
	SessionID string
	PartnerID string
}

// AuthResult is the verified identity behind a widget credential.
type AuthResult struct {
	SessionID   string
	PartnerID   string
	UserID      string
	Permissions []string
	ExpiresAt   time.Time
}

// AccountCreationRequest is the input of [Engine.CheckAccountCreation].
// Email and SessionID are optional; their layers are skipped when empty.
type AccountCreationRequest struct {
	PartnerID string
	SessionID string
	Email     string
	Request   clientid.Request
}

// RateDecision is the outcome of a layered rate-limit check.
type RateDecision struct {
	Allowed bool
	// Layer names the denying layer; empty when allowed.
	Layer     string
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set on denial.
	RetryAfter time.Duration
}

// RateCheck is one caller-defined layer for [Engine.CheckLimits]. Window and
// Max are clamped to [1m, 7d] and [0, 1000]; the first call for a layer name
// fixes its bounds.
type RateCheck struct {
	Layer      string
	Identifier string
	Window     time.Duration
	Max        int
}
