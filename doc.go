// Package widgetAuth turns partner-issued API keys into short-lived widget
// bearer credentials and guards widget endpoints with layered fixed-window
// rate limits.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Flow
//
// [Engine.Authenticate] rate-limits the caller, verifies the partner API key,
// creates a server-side session and issues a "wgt_" credential bound to it.
// [Engine.Verify] checks the credential signature and then the live session,
// so [Engine.InvalidateSession] takes effect immediately.
// [Engine.CheckAccountCreation] runs the account-creation gate: network
// address, partner, partner creation, email, session and partner burst
// layers, in that order, stopping at the first denial.
//
// # Architecture boundaries
//
// widgetAuth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Rate-limit state lives in internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Surface store or sink error text to callers; rejections carry reason
//     codes only.
//   - Hold a rate-limiter lock across store or audit I/O.
//   - Treat an unverifiable session as valid.
package widgetAuth
