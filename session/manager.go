package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MrEthical07/widgetAuth/internal"
	"github.com/benbjohnson/clock"
)

var (
	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session existed but has expired.
	// The record is deleted before this is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrStoreUnavailable is returned when the store failed or the operation
	// deadline passed. Validation callers must treat it as invalid.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrUserAlreadyBound is returned when binding a different user to a
	// session that already has one.
	ErrUserAlreadyBound = errors.New("session already bound to another user")
	// ErrInvalidInput is returned for creation requests missing a partner.
	ErrInvalidInput = errors.New("invalid session input")
)

const (
	// DefaultTTL is the fixed lifetime of every session.
	DefaultTTL = 24 * time.Hour

	defaultOpTimeout          = 2 * time.Second
	defaultSweepBatch         = 500
	defaultActivityResolution = time.Minute
)

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	TTL time.Duration
	// OpTimeout bounds each store call in addition to the caller's context.
	OpTimeout  time.Duration
	SweepBatch int
	// ActivityResolution skips activity writes when the stored timestamp is
	// more recent than this.
	ActivityResolution time.Duration
	// OnSweep, when set, receives the deleted count of every successful
	// background sweep.
	OnSweep func(deleted int)
}

// CreateInput carries the fields of a new session.
type CreateInput struct {
	PartnerID      string
	CredentialHash string
	UserID         string
	IPAddress      string
	UserAgent      string
	Origin         string
}

// Manager implements the session lifecycle over a [Store]. It is safe for
// concurrent use; calls for different sessions are fully independent.
type Manager struct {
	store  Store
	config ManagerConfig
	clock  clock.Clock
}

// NewManager returns a [Manager]. Zero config fields take defaults and a nil
// clock means wall time.
func NewManager(store Store, cfg ManagerConfig, clk clock.Clock) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultSweepBatch
	}
	if cfg.ActivityResolution <= 0 {
		cfg.ActivityResolution = defaultActivityResolution
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{store: store, config: cfg, clock: clk}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Create persists a new session and returns it. Nothing is returned unless
// the write succeeded.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Record, error) {
	if in.PartnerID == "" {
		return nil, ErrInvalidInput
	}

	now := m.clock.Now()
	id, err := internal.NewSessionID(now)
	if err != nil {
		return nil, fmt.Errorf("session: generate id: %w", err)
	}

	rec := &Record{
		SessionID:      id,
		PartnerID:      in.PartnerID,
		UserID:         in.UserID,
		CredentialHash: in.CredentialHash,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.config.TTL),
		LastActivityAt: now,
		IPAddress:      in.IPAddress,
		UserAgent:      in.UserAgent,
		Origin:         in.Origin,
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.store.Set(opCtx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if opCtx.Err() != nil {
		// The write may or may not have landed; make sure it does not linger.
		m.bestEffortDelete(ctx, id)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, opCtx.Err())
	}

	return rec, nil
}

// Validate returns the live session for id. Absent sessions yield
// [ErrSessionNotFound]; expired ones are deleted and yield
// [ErrSessionExpired]; store failures and deadlines yield
// [ErrStoreUnavailable].
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	opCtx, cancel := m.opContext(ctx)
	rec, err := m.store.Get(opCtx, sessionID)
	deadlineErr := opCtx.Err()
	cancel()

	if err != nil {
		if errors.Is(err, ErrNotFound) && deadlineErr == nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if deadlineErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, deadlineErr)
	}

	now := m.clock.Now()
	if rec.Expired(now) {
		m.bestEffortDelete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	if now.Sub(rec.LastActivityAt) >= m.config.ActivityResolution {
		m.touch(ctx, sessionID, now)
		rec.LastActivityAt = now
	}

	return rec, nil
}

// Invalidate deletes the session. Unknown ids succeed.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.store.Delete(opCtx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// BindUser attaches an end user to a live session. Rebinding the same user
// is a no-op.
func (m *Manager) BindUser(ctx context.Context, sessionID, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	rec, err := m.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.UserID == userID {
		return rec, nil
	}
	if rec.UserID != "" {
		return nil, ErrUserAlreadyBound
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if err := m.store.Update(opCtx, sessionID, Patch{UserID: &userID}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec.UserID = userID
	return rec, nil
}

// SweepExpired deletes every session whose expiry is before now, in batches,
// and returns how many were deleted.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()
	deleted := 0

	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		opCtx, cancel := m.opContext(ctx)
		ids, err := m.store.QueryRange(opCtx, RangeQuery{
			Field: FieldExpiresAt,
			Op:    OpLess,
			Value: now,
			Limit: m.config.SweepBatch,
		})
		cancel()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, id := range ids {
			opCtx, cancel := m.opContext(ctx)
			err := m.store.Delete(opCtx, id)
			cancel()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			deleted++
		}

		if len(ids) < m.config.SweepBatch {
			return deleted, nil
		}
	}
}

// RunSweeper calls [Manager.SweepExpired] every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Print("widgetAuth: expired session sweep failed")
				}
				continue
			}
			if m.config.OnSweep != nil {
				m.config.OnSweep(n)
			}
		}
	}
}

func (m *Manager) touch(ctx context.Context, sessionID string, now time.Time) {
	opCtx, cancel := m.opContext(ctx)
	defer cancel()
	// Activity is telemetry; failures never invalidate the session.
	_ = m.store.Update(opCtx, sessionID, Patch{LastActivityAt: &now})
}

func (m *Manager) bestEffortDelete(ctx context.Context, sessionID string) {
	opCtx, cancel := m.opContext(context.WithoutCancel(ctx))
	defer cancel()
	_ = m.store.Delete(opCtx, sessionID)
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.config.OpTimeout)
}
