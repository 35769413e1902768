// Package middleware exposes HTTP adapters for widgetAuth.Engine.
//
// # Adapters
//
//   - [Guard] verifies the widget credential and stores the result in the
//     request context.
//   - [RateLimit] gates a route with caller-defined rate-limit layers.
//   - [WriteRejection] renders engine errors as status code plus JSON body.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to the
// engine.
//
// # What this package must NOT do
//
//   - Parse or create credentials directly.
//   - Access Redis.
//   - Put error detail other than reason codes into responses.
package middleware
