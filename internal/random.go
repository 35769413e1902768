package internal

import (
	"crypto/rand"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	sessionIDPrefix     = "ws_"
	sessionRandomLength = 22
	apiKeySecretLength  = 40

	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// Largest multiple of len(alphabet) below 256; bytes at or above it are
	// rejected to keep the distribution uniform.
	rejectionBound = 248
)

// NewSessionID returns "ws_<base36 unix ms>_<22 random base62 chars>".
func NewSessionID(now time.Time) (string, error) {
	suffix, err := RandomString(sessionRandomLength)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(sessionIDPrefix) + 12 + sessionRandomLength)
	b.WriteString(sessionIDPrefix)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	b.WriteByte('_')
	b.WriteString(suffix)
	return b.String(), nil
}

// NewAPIKeySecret returns a random secret for a partner API key.
func NewAPIKeySecret() (string, error) {
	return RandomString(apiKeySecretLength)
}

// RandomString returns n uniformly distributed base62 characters.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random string length")
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if c >= rejectionBound {
				continue
			}
			out = append(out, alphabet[int(c)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
