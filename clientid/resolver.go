package clientid

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	// Unknown is the address reported when no usable address is available.
	Unknown = "unknown"

	// DefaultMaxHops bounds how many X-Forwarded-For entries are inspected.
	DefaultMaxHops = 3
	// DefaultCDNHeader is the CDN-supplied client address header.
	DefaultCDNHeader = "CF-Connecting-IP"

	fingerprintLength  = 32
	userAgentLimit     = 50
	acceptLimit        = 20
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// Request is the subset of an inbound request the resolver consumes.
type Request struct {
	Method     string
	Path       string
	Header     http.Header
	RemoteAddr string
}

// FromHTTP converts an [http.Request] into a [Request].
func FromHTTP(r *http.Request) Request {
	if r == nil {
		return Request{}
	}
	req := Request{
		Method:     r.Method,
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
	}
	if r.URL != nil {
		req.Path = r.URL.Path
	}
	return req
}

// Identity is the resolved client identity.
type Identity struct {
	Address     string
	Fingerprint string
	UserAgent   string
	// Forwarded is true when Address came from a trusted forwarding header.
	Forwarded bool
}

// Config controls proxy trust.
type Config struct {
	// TrustedProxies lists peer addresses or CIDR ranges whose forwarding
	// headers are believed.
	TrustedProxies []string
	MaxHops        int
	CDNHeader      string
}

// Resolver turns requests into identities. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	trusted   []netip.Prefix
	maxHops   int
	cdnHeader string
}

// NewResolver builds a [Resolver]. Unparseable trusted-proxy entries are
// skipped; they can only narrow trust, never widen it.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		maxHops:   cfg.MaxHops,
		cdnHeader: cfg.CDNHeader,
	}
	if r.maxHops <= 0 {
		r.maxHops = DefaultMaxHops
	}
	if r.cdnHeader == "" {
		r.cdnHeader = DefaultCDNHeader
	}

	for _, raw := range cfg.TrustedProxies {
		if prefix, ok := parseTrusted(raw); ok {
			r.trusted = append(r.trusted, prefix)
		}
	}

	return r
}

// Resolve derives the client identity. It never fails.
func (r *Resolver) Resolve(req Request) Identity {
	header := req.Header
	if header == nil {
		header = http.Header{}
	}

	peer, peerOK := peerAddr(req.RemoteAddr)

	id := Identity{
		Address:   Unknown,
		UserAgent: header.Get("User-Agent"),
	}
	if peerOK {
		id.Address = peer.String()
	}

	if peerOK && r.isTrusted(peer) {
		if addr, ok := r.forwardedAddr(header); ok {
			id.Address = addr.String()
			id.Forwarded = true
		}
	}

	id.Fingerprint = Fingerprint(
		id.Address,
		id.UserAgent,
		header.Get("Accept-Language"),
		header.Get("Accept-Encoding"),
	)

	return id
}

// ResolveHTTP is a convenience wrapper for [Resolver.Resolve].
func (r *Resolver) ResolveHTTP(req *http.Request) Identity {
	return r.Resolve(FromHTTP(req))
}

// Fingerprint combines the address with stable request characteristics into
// a fixed-length pseudonymous key.
func Fingerprint(address, userAgent, acceptLanguage, acceptEncoding string) string {
	var b strings.Builder
	b.Grow(len(address) + userAgentLimit + 2*acceptLimit + 3)
	b.WriteString(address)
	b.WriteByte('|')
	b.WriteString(truncate(userAgent, userAgentLimit))
	b.WriteByte('|')
	b.WriteString(truncate(acceptLanguage, acceptLimit))
	b.WriteByte('|')
	b.WriteString(truncate(acceptEncoding, acceptLimit))

	sum := sha256.Sum256([]byte(b.String()))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:fingerprintLength]
}

func (r *Resolver) forwardedAddr(header http.Header) (netip.Addr, bool) {
	if addr, ok := parseAddr(header.Get(r.cdnHeader)); ok {
		return addr, true
	}

	if xff := header.Values(headerForwardedFor); len(xff) > 0 {
		hops := 0
		for _, line := range xff {
			for _, part := range strings.Split(line, ",") {
				if hops >= r.maxHops {
					break
				}
				hops++
				if addr, ok := parseAddr(part); ok {
					return addr, true
				}
			}
		}
	}

	if addr, ok := parseAddr(header.Get(headerRealIP)); ok {
		return addr, true
	}

	return netip.Addr{}, false
}

func (r *Resolver) isTrusted(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		remoteAddr = host
	}
	return parseAddr(remoteAddr)
}

func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	raw = strings.TrimPrefix(strings.TrimSuffix(raw, "]"), "[")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

func parseTrusted(raw string) (netip.Prefix, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Prefix{}, false
	}
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, false
		}
		return prefix.Masked(), true
	}
	addr, ok := parseAddr(raw)
	if !ok {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(addr, addr.BitLen()), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
