// Package limiters composes internal/rate counters into the multi-layer gate
// used by widget authentication and account creation.
//
// # Layers
//
// Each protection dimension (network address, fingerprint, partner, partner
// creation, email, session, partner burst) is one named [rate.Counter]. A
// [Limiter] evaluates the layers a caller supplies, in order, and stops at the
// first denial so the caller can report which dimension tripped.
//
// Layers that were not registered up front are ad-hoc: their caller-supplied
// bounds are clamped (see [ClampAdHoc]) before a counter is created for them.
// At most Config.AdHocMaxLayers ad-hoc layers exist at once. A new name past
// that cap is denied with Result.Saturated set and nothing counted.
//
// # Sweeping
//
// Counters run without their own goroutine. The [Limiter] sweeps all of them
// from one loop and drops ad-hoc layers that no longer track any identifier.
//
// # What this package must NOT do
//
//   - Import widgetAuth or any sibling internal package except internal/rate.
//   - Decide user-facing consequences; callers map [Result] to rejections.
package limiters
