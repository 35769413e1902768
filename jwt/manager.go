package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the credential signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// Prefix is prepended to every issued credential.
	Prefix = "wgt_"
	// TokenType is the typ claim of widget credentials.
	TokenType = "widget_user"

	// DefaultTTL is the credential lifetime when Config.TTL is zero.
	DefaultTTL = 24 * time.Hour

	minSecretLength = 32
)

// ErrInvalidToken is the single error returned for any rejected credential.
var ErrInvalidToken = errors.New("invalid token")

// Config defines signing keys and validation rules.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
	Clock      clock.Clock
}

// Claims is the credential payload.
type Claims struct {
	SessionID   string   `json:"sid"`
	PartnerID   string   `json:"pid"`
	UserID      string   `json:"uid,omitempty"`
	Type        string   `json:"typ"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// IssueInput is what a credential is bound to.
type IssueInput struct {
	SessionID   string
	PartnerID   string
	UserID      string
	Permissions []string
	// NotAfter caps the credential expiry, typically at the session expiry.
	NotAfter time.Time
}

// Manager signs and verifies credentials. Immutable after construction.
type Manager struct {
	config Config
	method jwt.SigningMethod
	signer interface{}
	parser *jwt.Parser
}

// NewManager validates cfg and builds a [Manager].
//
// Issuer and Audience are mandatory: credentials are always scoped to a fixed
// pair. A manager without a private key can only verify.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minSecretLength {
			return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", minSecretLength)
		}
		m.method = jwt.SigningMethodHS256
		m.signer = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			key, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signer = key
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Clock.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the configured credential lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a credential for in and returns it with its expiry.
func (m *Manager) Issue(in IssueInput) (string, time.Time, error) {
	if m.signer == nil {
		return "", time.Time{}, errors.New("manager has no signing key")
	}
	if in.SessionID == "" || in.PartnerID == "" {
		return "", time.Time{}, errors.New("session and partner are required")
	}

	now := m.config.Clock.Now()
	expiresAt := now.Add(m.config.TTL)
	if !in.NotAfter.IsZero() && in.NotAfter.Before(expiresAt) {
		expiresAt = in.NotAfter
	}

	perms := in.Permissions
	if perms == nil {
		perms = []string{}
	}

	claims := Claims{
		SessionID:   in.SessionID,
		PartnerID:   in.PartnerID,
		UserID:      in.UserID,
		Type:        TokenType,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.signer)
	if err != nil {
		return "", time.Time{}, err
	}

	// Expiry is truncated to whole seconds on the wire; report what was signed.
	return Prefix + signed, claims.ExpiresAt.Time, nil
}

// Parse strips the prefix if present and verifies algorithm, signature,
// issuer, audience, expiry and type. It does not consult session state.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimPrefix(strings.TrimSpace(tokenStr), Prefix)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, m.verifyKey)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenType || claims.SessionID == "" || claims.PartnerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) verifyKey(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(m.config.VerifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return m.keyBytesToVerifyKey(key)
	}

	if m.config.KeyID != "" && kid != m.config.KeyID {
		return nil, errors.New("unknown kid")
	}

	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
