// Package session owns widget session records: their persistence and their
// lifecycle.
//
// # Lifecycle
//
// A session moves Created → Active → (Expired | Invalidated). There is no
// renew transition; a widget that loses its session authenticates again and
// receives a fresh one. Expiry is fixed at creation time.
//
// # Architecture boundaries
//
// [Manager] implements the lifecycle on top of any [Store]. [RedisStore] is
// the production store: one hash per session plus a sorted-set index on
// expiry that backs [Store.QueryRange].
//
// Validation fails closed. A store error or an exceeded deadline is reported
// as [ErrStoreUnavailable] and callers must treat it as an invalid session.
//
// # What this package must NOT do
//
//   - Import widgetAuth, jwt, or audit (no upward imports).
//   - Store the raw partner API key or issued bearer credential.
//   - Extend a session's expiry after creation.
package session
