package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a [Store] when no record exists for the id.
var ErrNotFound = errors.New("session record not found")

// ErrRedisUnavailable wraps failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrUnsupportedQuery is returned for range queries a store cannot serve.
var ErrUnsupportedQuery = errors.New("unsupported session range query")

// Store is document-keyed session storage. Implementations provide
// single-document atomicity; nothing more is required.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
	// Update applies patch only if the record exists; otherwise ErrNotFound.
	Update(ctx context.Context, sessionID string, patch Patch) error
	// Delete is idempotent.
	Delete(ctx context.Context, sessionID string) error
	QueryRange(ctx context.Context, q RangeQuery) ([]string, error)
}

// Field names accepted by [RangeQuery].
const (
	FieldExpiresAt = "expires_at"
)

// Op is a range comparison operator.
type Op string

// Supported comparison operators.
const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// RangeQuery selects session ids whose Field compares to Value under Op.
// Limit <= 0 means unbounded.
type RangeQuery struct {
	Field string
	Op    Op
	Value time.Time
	Limit int
}
