package widgetAuth

import (
	"context"
	"sync"

	"github.com/MrEthical07/widgetAuth/audit"
	"github.com/MrEthical07/widgetAuth/clientid"
	"github.com/MrEthical07/widgetAuth/internal/limiters"
	"github.com/MrEthical07/widgetAuth/jwt"
	"github.com/MrEthical07/widgetAuth/keyhash"
	"github.com/MrEthical07/widgetAuth/session"
	"github.com/benbjohnson/clock"
)

// Engine is the widget authentication engine. Build one with [Builder];
// all methods are safe for concurrent use.
type Engine struct {
	config   Config
	clock    clock.Clock
	resolver *clientid.Resolver
	limiter  *limiters.Limiter
	store    session.Store
	sessions *session.Manager
	tokens   *jwt.Manager
	keys     *keyhash.Argon2
	partners PartnerProvider
	emitter  *audit.Emitter
	audit    *audit.Dispatcher
	metrics  *Metrics

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Start launches the expired-session sweeper. It returns immediately; the
// sweeper stops when ctx is done or the engine is closed. Calling Start more
// than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)

		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			defer cancel()
			select {
			case <-e.stop:
			case <-ctx.Done():
			}
		}()
		go func() {
			defer e.wg.Done()
			e.sessions.RunSweeper(ctx, e.config.Session.SweepInterval)
		}()
	})
}

// Close stops background work, flushes queued audit events and releases the
// rate-limit counters. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.stop)
		e.wg.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
		e.limiter.Close()
	})
}

// Identify resolves the caller identity of req using the configured proxy
// trust.
func (e *Engine) Identify(req clientid.Request) clientid.Identity {
	return e.resolver.Resolve(req)
}

// AuditDropped returns how many audit events were dropped because the queue
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditCounts returns audit delivery outcomes so far.
func (e *Engine) AuditCounts() audit.OutcomeCounts {
	if e == nil || e.emitter == nil {
		return audit.OutcomeCounts{}
	}
	return e.emitter.Counts()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
