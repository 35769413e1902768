package widgetAuth

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrRateLimited is returned when a rate-limit layer denies the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidCredential is returned for unknown, malformed or wrong API keys.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidToken is returned when a bearer credential fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionInvalid is returned when the bound session is absent, expired,
	// mismatched or cannot be verified.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrInvalidRequest is returned for malformed request fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnavailable is returned when a backing store fails during an
	// operation that must not proceed without it.
	ErrUnavailable = errors.New("service unavailable")
	// ErrOriginNotAllowed is returned when the widget origin is not on the
	// partner's allow-list.
	ErrOriginNotAllowed = errors.New("origin not allowed")
	// ErrPartnerInactive is returned for suspended or disabled partners.
	ErrPartnerInactive = errors.New("partner inactive")
	// ErrPartnerNotFound is returned by a PartnerProvider for unknown key IDs.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrEngineNotReady is returned by methods called on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Reason codes carried by [RejectionError].
const (
	ReasonRateLimited       = "rate_limited"
	ReasonInvalidCredential = "invalid_credential"
	ReasonInvalidToken      = "invalid_token"
	ReasonSessionInvalid    = "session_invalid"
	ReasonInvalidRequest    = "invalid_request"
	ReasonUnavailable       = "unavailable"
	ReasonOriginNotAllowed  = "origin_not_allowed"
	ReasonPartnerInactive   = "partner_inactive"
)

// RejectionError is the structured form of every error the engine returns to
// request handling. It unwraps to one of the package sentinels.
type RejectionError struct {
	Reason string
	// Layer names the rate-limit dimension that denied the request.
	Layer      string
	RetryAfter time.Duration

	err error
}

func (e *RejectionError) Error() string {
	if e.Layer == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Layer
}

func (e *RejectionError) Unwrap() error {
	return e.err
}

func reject(sentinel error) *RejectionError {
	return &RejectionError{Reason: reasonFor(sentinel), err: sentinel}
}

func rateLimited(layer string, retryAfter time.Duration) *RejectionError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &RejectionError{
		Reason:     ReasonRateLimited,
		Layer:      layer,
		RetryAfter: retryAfter.Round(time.Second),
		err:        ErrRateLimited,
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrInvalidCredential):
		return ReasonInvalidCredential
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken
	case errors.Is(err, ErrSessionInvalid):
		return ReasonSessionInvalid
	case errors.Is(err, ErrInvalidRequest):
		return ReasonInvalidRequest
	case errors.Is(err, ErrOriginNotAllowed):
		return ReasonOriginNotAllowed
	case errors.Is(err, ErrPartnerInactive):
		return ReasonPartnerInactive
	default:
		return ReasonUnavailable
	}
}

// AsRejection converts any engine error into a [RejectionError]. Unknown
// errors become ReasonUnavailable so internal detail never leaks.
func AsRejection(err error) *RejectionError {
	if err == nil {
		return nil
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej
	}
	return reject(sentinelFor(err))
}

func sentinelFor(err error) error {
	for _, s := range []error{
		ErrRateLimited, ErrInvalidCredential, ErrInvalidToken, ErrSessionInvalid,
		ErrInvalidRequest, ErrOriginNotAllowed, ErrPartnerInactive,
	} {
		if errors.Is(err, s) {
			return s
		}
	}
	return ErrUnavailable
}

func layerName(counterName string) string {
	if i := strings.IndexByte(counterName, ':'); i >= 0 {
		return counterName[i+1:]
	}
	return counterName
}
