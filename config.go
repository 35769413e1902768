package widgetAuth

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/MrEthical07/widgetAuth/internal/limiters"
	"github.com/MrEthical07/widgetAuth/internal/rate"
	"github.com/MrEthical07/widgetAuth/keyhash"
)

// Config is the static engine configuration. It is cloned into the engine
// at Build and never mutated afterwards.
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	RateLimits RateLimitConfig
	Proxy      ProxyConfig
	KeyHash    keyhash.Config
	Audit      AuditConfig
	Metrics    MetricsConfig
	// PartnerLookupTimeout bounds each PartnerProvider call.
	PartnerLookupTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures widget credential signing.
type JWTConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session lifecycle and its Redis store.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
	// OpTimeout bounds each store call; a validation that exceeds it fails
	// closed.
	OpTimeout     time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// LayerLimit is one fixed-window layer.
type LayerLimit struct {
	Window time.Duration
	Max    int
	// MaxEntries caps tracked identifiers for this layer. Zero uses
	// RateLimitConfig.MaxEntries.
	MaxEntries int
}

// AuthPolicy holds the layers checked before authentication.
type AuthPolicy struct {
	IP          LayerLimit
	Fingerprint LayerLimit
	Partner     LayerLimit
}

// AccountCreationPolicy holds the account-creation layers, evaluated in
// field order.
type AccountCreationPolicy struct {
	// IP is a coarse, generous network-address ceiling.
	IP LayerLimit
	// Partner isolates partners' request budgets from each other.
	Partner LayerLimit
	// PartnerCreation is a tighter per-partner creation ceiling.
	PartnerCreation LayerLimit
	Email           LayerLimit
	Session         LayerLimit
	// PartnerBurst is a short window on top of the daily creation cap.
	PartnerBurst LayerLimit
}

// RateLimitConfig configures every static layer and the ad-hoc layer bounds.
type RateLimitConfig struct {
	// MaxEntries caps tracked identifiers per static layer unless the layer
	// sets its own.
	MaxEntries      int
	AdHocMaxEntries int
	// AdHocMaxLayers caps how many ad-hoc layer names are tracked at once.
	// A new name past the cap is denied until idle layers are swept.
	AdHocMaxLayers  int
	SweepInterval   time.Duration
	Auth            AuthPolicy
	AccountCreation AccountCreationPolicy
}

/*
====================================
PROXY CONFIG
====================================
*/

// ProxyConfig controls which forwarding headers are trusted.
type ProxyConfig struct {
	TrustedProxies []string
	MaxHops        int
	CDNHeader      string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures asynchronous audit delivery.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// StageTimeout bounds each sink attempt.
	StageTimeout time.Duration
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a production-leaning configuration. Signing keys,
// issuer and audience must still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			RedisPrefix:   "ws",
			OpTimeout:     2 * time.Second,
			SweepInterval: 5 * time.Minute,
			SweepBatch:    500,
		},
		RateLimits: RateLimitConfig{
			MaxEntries:      10000,
			AdHocMaxEntries: 10000,
			AdHocMaxLayers:  64,
			SweepInterval:   time.Minute,
			Auth: AuthPolicy{
				IP:          LayerLimit{Window: time.Hour, Max: 100},
				Fingerprint: LayerLimit{Window: time.Hour, Max: 30},
				Partner:     LayerLimit{Window: time.Hour, Max: 10000},
			},
			AccountCreation: AccountCreationPolicy{
				IP:              LayerLimit{Window: time.Hour, Max: 50},
				Partner:         LayerLimit{Window: time.Hour, Max: 5000},
				PartnerCreation: LayerLimit{Window: 24 * time.Hour, Max: 1000},
				Email:           LayerLimit{Window: 24 * time.Hour, Max: 3},
				Session:         LayerLimit{Window: time.Hour, Max: 5},
				PartnerBurst:    LayerLimit{Window: time.Minute, Max: 50},
			},
		},
		Proxy: ProxyConfig{
			MaxHops:   3,
			CDNHeader: "CF-Connecting-IP",
		},
		KeyHash: keyhash.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:      true,
			BufferSize:   1024,
			DropIfFull:   true,
			StageTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		PartnerLookupTimeout: 2 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Proxy.TrustedProxies != nil {
		out.Proxy.TrustedProxies = append([]string(nil), cfg.Proxy.TrustedProxies...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey to issue credentials")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Issuer and Audience are required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.JWT.TTL > c.Session.TTL {
		return errors.New("JWT TTL must not exceed Session TTL")
	}
	if c.Session.OpTimeout <= 0 {
		return errors.New("Session OpTimeout must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("Session SweepInterval must be > 0")
	}
	if c.Session.SweepBatch <= 0 {
		return errors.New("Session SweepBatch must be > 0")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}

	// Rate limits
	if c.RateLimits.MaxEntries <= 0 || c.RateLimits.AdHocMaxEntries <= 0 {
		return errors.New("RateLimits MaxEntries and AdHocMaxEntries must be > 0")
	}
	if c.RateLimits.AdHocMaxLayers <= 0 {
		return errors.New("RateLimits AdHocMaxLayers must be > 0")
	}
	for name, layer := range c.RateLimits.layers() {
		if layer.Window < rate.MinWindow {
			return fmt.Errorf("RateLimits layer %s window must be >= %s", name, rate.MinWindow)
		}
		if layer.Max < 0 {
			return fmt.Errorf("RateLimits layer %s max must be >= 0", name)
		}
		if layer.MaxEntries < 0 {
			return fmt.Errorf("RateLimits layer %s max entries must be >= 0", name)
		}
	}

	// Proxy
	if c.Proxy.MaxHops < 1 || c.Proxy.MaxHops > 10 {
		return errors.New("Proxy MaxHops must be between 1 and 10")
	}
	for _, raw := range c.Proxy.TrustedProxies {
		if !validProxyEntry(raw) {
			return fmt.Errorf("Proxy TrustedProxies entry %q is not an IP or CIDR", raw)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.PartnerLookupTimeout <= 0 {
		return errors.New("PartnerLookupTimeout must be > 0")
	}

	return nil
}

// layers maps namespaced counter names to their configured limits.
func (r RateLimitConfig) layers() map[string]LayerLimit {
	return map[string]LayerLimit{
		authLayer(LayerIP):                  r.Auth.IP,
		authLayer(LayerFingerprint):         r.Auth.Fingerprint,
		authLayer(LayerPartner):             r.Auth.Partner,
		creationLayer(LayerIP):              r.AccountCreation.IP,
		creationLayer(LayerPartner):         r.AccountCreation.Partner,
		creationLayer(LayerPartnerCreation): r.AccountCreation.PartnerCreation,
		creationLayer(LayerEmail):           r.AccountCreation.Email,
		creationLayer(LayerSession):         r.AccountCreation.Session,
		creationLayer(LayerPartnerBurst):    r.AccountCreation.PartnerBurst,
	}
}

func (r RateLimitConfig) limiterConfig() limiters.Config {
	return limiters.Config{
		AdHocMaxEntries: r.AdHocMaxEntries,
		AdHocMaxLayers:  r.AdHocMaxLayers,
		SweepInterval:   r.SweepInterval,
	}
}

func validProxyEntry(raw string) bool {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "/") {
		_, err := netip.ParsePrefix(raw)
		return err == nil
	}
	_, err := netip.ParseAddr(raw)
	return err == nil
}
