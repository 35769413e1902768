package keyhash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	apiKeyPrefix = "pk_"

	minKeyIDLength  = 4
	maxKeyIDLength  = 64
	minSecretLength = 24
	maxSecretLength = 128
)

// ErrMalformedKey is returned for strings that are not partner API keys.
var ErrMalformedKey = errors.New("malformed api key")

// APIKey is a parsed partner API key.
type APIKey struct {
	KeyID  string
	Secret string
}

// ParseAPIKey splits "pk_<keyID>_<secret>". The key ID must not contain an
// underscore; the secret may.
func ParseAPIKey(raw string) (APIKey, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return APIKey{}, ErrMalformedKey
	}

	keyID, secret, ok := strings.Cut(raw[len(apiKeyPrefix):], "_")
	if !ok {
		return APIKey{}, ErrMalformedKey
	}
	if len(keyID) < minKeyIDLength || len(keyID) > maxKeyIDLength || !isKeyIDSafe(keyID) {
		return APIKey{}, ErrMalformedKey
	}
	if len(secret) < minSecretLength || len(secret) > maxSecretLength {
		return APIKey{}, ErrMalformedKey
	}

	return APIKey{KeyID: keyID, Secret: secret}, nil
}

// String reassembles the key. It contains the secret.
func (k APIKey) String() string {
	return apiKeyPrefix + k.KeyID + "_" + k.Secret
}

// Digest is a hex SHA-256 of the full key, suitable for recording which
// credential opened a session without storing the credential.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func isKeyIDSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
