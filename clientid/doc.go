// Package clientid derives a client identity (network address plus a
// request fingerprint) from an inbound request without trusting spoofable
// forwarding headers.
//
// Forwarded-address headers are honored only when the immediate peer is on
// the configured trusted-proxy allow-list. The fingerprint is a
// deduplication signal for rate limiting, never an authorization key.
//
// # What this package must NOT do
//
//   - Return errors or panic on malformed input; it degrades to the weakest
//     available identity instead.
//   - Import widgetAuth.
package clientid
