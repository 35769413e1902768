package clientid

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestResolveIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	r := NewResolver(Config{TrustedProxies: []string{"10.0.0.1"}})

	id := r.Resolve(Request{
		RemoteAddr: "203.0.113.7:5555",
		Header: headers(
			"X-Forwarded-For", "198.51.100.1",
			"X-Real-IP", "198.51.100.2",
			"CF-Connecting-IP", "198.51.100.3",
		),
	})

	if id.Address != "203.0.113.7" {
		t.Fatalf("expected raw peer address, got %q", id.Address)
	}
	if id.Forwarded {
		t.Fatal("untrusted peer must not yield a forwarded address")
	}
}

func TestResolveTrustsForwardedForFromTrustedProxy(t *testing.T) {
	r := NewResolver(Config{TrustedProxies: []string{"10.0.0.0/8"}})

	id := r.Resolve(Request{
		RemoteAddr: "10.1.2.3:443",
		Header:     headers("X-Forwarded-For", "not-an-ip, 198.51.100.9, 192.0.2.1"),
	})

	if id.Address != "198.51.100.9" {
		t.Fatalf("expected first valid forwarded address, got %q", id.Address)
	}
	if !id.Forwarded {
		t.Fatal("expected forwarded flag")
	}
}

func TestResolveStopsAfterMaxHops(t *testing.T) {
	r := NewResolver(Config{TrustedProxies: []string{"10.0.0.1"}, MaxHops: 2})

	id := r.Resolve(Request{
		RemoteAddr: "10.0.0.1:443",
		Header:     headers("X-Forwarded-For", "junk, garbage, 198.51.100.9"),
	})

	if id.Address != "10.0.0.1" {
		t.Fatalf("expected fallback to peer after hop budget, got %q", id.Address)
	}
}

func TestResolvePrefersCDNHeader(t *testing.T) {
	r := NewResolver(Config{TrustedProxies: []string{"10.0.0.1"}})

	id := r.Resolve(Request{
		RemoteAddr: "10.0.0.1:443",
		Header: headers(
			"CF-Connecting-IP", "2001:db8::1",
			"X-Forwarded-For", "198.51.100.9",
		),
	})

	if id.Address != "2001:db8::1" {
		t.Fatalf("expected CDN address, got %q", id.Address)
	}
}

func TestResolveFallsBackToRealIP(t *testing.T) {
	r := NewResolver(Config{TrustedProxies: []string{"10.0.0.1"}})

	id := r.Resolve(Request{
		RemoteAddr: "10.0.0.1:443",
		Header:     headers("X-Real-IP", "198.51.100.4"),
	})

	if id.Address != "198.51.100.4" {
		t.Fatalf("expected X-Real-IP address, got %q", id.Address)
	}
}

func TestResolveDegradesToUnknown(t *testing.T) {
	r := NewResolver(Config{})

	id := r.Resolve(Request{})
	if id.Address != Unknown {
		t.Fatalf("expected %q, got %q", Unknown, id.Address)
	}
	if len(id.Fingerprint) != fingerprintLength {
		t.Fatalf("expected fingerprint of length %d, got %q", fingerprintLength, id.Fingerprint)
	}
}

func TestResolveHTTPUsesRemoteAddr(t *testing.T) {
	r := NewResolver(Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/widget/session", nil)
	req.RemoteAddr = "[2001:db8::5]:1234"

	id := r.ResolveHTTP(req)
	if id.Address != "2001:db8::5" {
		t.Fatalf("expected bracketed IPv6 peer to parse, got %q", id.Address)
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	a := Fingerprint("198.51.100.1", "Mozilla/5.0", "en-US", "gzip")
	b := Fingerprint("198.51.100.1", "Mozilla/5.0", "en-US", "gzip")
	c := Fingerprint("198.51.100.1", "curl/8.0", "en-US", "gzip")

	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}
	if a == c {
		t.Fatal("fingerprint must change with user agent")
	}
	if len(a) != fingerprintLength {
		t.Fatalf("expected length %d, got %d", fingerprintLength, len(a))
	}
}

func TestFingerprintTruncatesLongHeaders(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	ua := string(long)

	if Fingerprint("x", ua, "", "") != Fingerprint("x", ua[:userAgentLimit], "", "") {
		t.Fatal("user agent beyond 50 bytes must not affect the fingerprint")
	}
}
