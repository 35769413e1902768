package widgetAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/widgetAuth/session"
)

// SessionInfo is the safe introspection view of a session. It excludes the
// credential hash.
type SessionInfo struct {
	SessionID      string
	PartnerID      string
	UserID         string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Origin         string
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// GetSession returns a read-only view of a live session. It does not record
// activity. Expired sessions are reported as not found.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, reject(ErrInvalidRequest)
	}

	opCtx, cancel := context.WithTimeout(ctx, e.config.Session.OpTimeout)
	defer cancel()

	rec, err := e.store.Get(opCtx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, reject(ErrSessionInvalid)
		}
		return nil, reject(ErrUnavailable)
	}
	if rec.Expired(e.clock.Now()) {
		return nil, reject(ErrSessionInvalid)
	}

	return &SessionInfo{
		SessionID:      rec.SessionID,
		PartnerID:      rec.PartnerID,
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
		ExpiresAt:      rec.ExpiresAt,
		LastActivityAt: rec.LastActivityAt,
		Origin:         rec.Origin,
	}, nil
}

// Health pings the session store when it supports it. Stores without a
// ping are reported available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}
	p, ok := e.store.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	latency, err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}
