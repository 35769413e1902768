package limiters

import (
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/widgetAuth/internal/rate"
	"github.com/benbjohnson/clock"
)

const (
	// AdHocMaxCeiling is the largest budget an ad-hoc layer may request.
	AdHocMaxCeiling = 1000
	// AdHocMaxWindow is the longest window an ad-hoc layer may request.
	AdHocMaxWindow = 7 * 24 * time.Hour

	defaultAdHocEntries  = 10000
	defaultAdHocLayers   = 64
	defaultSweepInterval = time.Minute
)

// ErrDuplicateLayer is returned by Register when a layer name is reused.
var ErrDuplicateLayer = errors.New("rate limit layer already registered")

// Check is one layer evaluation requested by a caller.
//
// Window and Max are only consulted for layers that were not registered up
// front; registered layers always use their static configuration.
type Check struct {
	Layer      string
	Identifier string
	Window     time.Duration
	Max        int
}

// Result is the outcome of [Limiter.CheckAll].
type Result struct {
	Allowed     bool
	FailedLayer string
	Remaining   int
	ResetAt     time.Time
	Evaluated   int
	// Saturated is set when FailedLayer is a new ad-hoc layer refused
	// because the ad-hoc layer cap is reached. No budget was consumed.
	Saturated bool
}

// Limiter composes named fixed-window counters and evaluates them as an
// all-must-pass gate. A single background loop sweeps every counter and
// drops ad-hoc layers that no longer track anything.
type Limiter struct {
	mu            sync.RWMutex
	counters      map[string]*rate.Counter
	static        map[string]bool
	clock         clock.Clock
	adHocEntries  int
	adHocLayers   int
	sweepInterval time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Config controls ad-hoc layer creation and the shared sweep.
type Config struct {
	AdHocMaxEntries int
	// AdHocMaxLayers caps how many ad-hoc layers exist at once.
	AdHocMaxLayers int
	SweepInterval  time.Duration
}

// New creates an empty [Limiter] and starts its sweep loop. A nil clk uses
// the wall clock.
func New(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.AdHocMaxEntries <= 0 {
		cfg.AdHocMaxEntries = defaultAdHocEntries
	}
	if cfg.AdHocMaxLayers <= 0 {
		cfg.AdHocMaxLayers = defaultAdHocLayers
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	l := &Limiter{
		counters:      make(map[string]*rate.Counter),
		static:        make(map[string]bool),
		clock:         clk,
		adHocEntries:  cfg.AdHocMaxEntries,
		adHocLayers:   cfg.AdHocMaxLayers,
		sweepInterval: cfg.SweepInterval,
		done:          make(chan struct{}),
	}

	l.wg.Add(1)
	go l.sweepLoop()

	return l
}

// Register installs a statically configured layer. The limiter's loop
// sweeps it; cfg.SweepInterval is ignored.
func (l *Limiter) Register(name string, cfg rate.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.counters[name]; exists {
		return ErrDuplicateLayer
	}
	cfg.SweepInterval = l.sweepInterval
	cfg.ManualSweep = true
	l.counters[name] = rate.NewCounter(cfg, l.clock)
	l.static[name] = true
	return nil
}

// CheckAll evaluates checks in order and stops at the first denial. On pass it
// reports the smallest remaining budget and the earliest reset across every
// evaluated layer.
//
// Every layer is resolved before any is counted, so a check refused at the
// ad-hoc layer cap leaves all budgets untouched.
func (l *Limiter) CheckAll(checks []Check) Result {
	l.mu.RLock()
	counters, missing := l.resolveLocked(checks)
	if missing < 0 {
		defer l.mu.RUnlock()
		return l.evaluate(checks, counters)
	}
	l.mu.RUnlock()

	// First use of a layer name: create under the write lock and evaluate
	// before the sweep can reclaim the new, still empty counter.
	l.mu.Lock()
	defer l.mu.Unlock()
	counters, missing = l.resolveLocked(checks)
	for missing >= 0 {
		check := checks[missing]
		c, ok := l.counters[check.Layer]
		if !ok {
			if l.adHocCountLocked() >= l.adHocLayers {
				return Result{
					Allowed:     false,
					FailedLayer: check.Layer,
					ResetAt:     l.clock.Now().Add(l.sweepInterval),
					Saturated:   true,
				}
			}
			c = l.newAdHocLocked(check)
		}
		counters[missing] = c
		missing = nextMissing(counters, missing+1)
	}
	return l.evaluate(checks, counters)
}

func (l *Limiter) evaluate(checks []Check, counters []*rate.Counter) Result {
	res := Result{Allowed: true, Remaining: -1}

	for i, check := range checks {
		d := counters[i].Check(check.Identifier)
		res.Evaluated++

		if !d.Allowed {
			return Result{
				Allowed:     false,
				FailedLayer: check.Layer,
				Remaining:   0,
				ResetAt:     d.ResetAt,
				Evaluated:   res.Evaluated,
			}
		}

		if res.Remaining < 0 || d.Remaining < res.Remaining {
			res.Remaining = d.Remaining
		}
		if res.ResetAt.IsZero() || d.ResetAt.Before(res.ResetAt) {
			res.ResetAt = d.ResetAt
		}
	}

	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res
}

// Layer returns the counter behind a layer name, if one exists.
func (l *Limiter) Layer(name string) (*rate.Counter, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.counters[name]
	return c, ok
}

// IsStatic reports whether name was registered up front.
func (l *Limiter) IsStatic(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.static[name]
}

// AdHocLayers returns how many ad-hoc layers are currently tracked.
func (l *Limiter) AdHocLayers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.adHocCountLocked()
}

// Sweep removes expired entries from every layer, then drops ad-hoc layers
// left empty. It returns the number of entries removed.
func (l *Limiter) Sweep() int {
	l.mu.RLock()
	counters := make([]*rate.Counter, 0, len(l.counters))
	for _, c := range l.counters {
		counters = append(counters, c)
	}
	l.mu.RUnlock()

	removed := 0
	for _, c := range counters {
		removed += c.Sweep()
	}

	// Checks run under the read lock, so no check is in flight here.
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, c := range l.counters {
		if !l.static[name] && c.Len() == 0 {
			delete(l.counters, name)
		}
	}
	return removed
}

// Close stops the sweep loop. CheckAll keeps working after Close; layers
// created later are bounded by the same caps but are no longer swept.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := l.clock.Ticker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.done:
			return
		}
	}
}

// resolveLocked maps checks to existing counters and returns the index of
// the first unknown layer, or -1. Caller must hold l.mu.
func (l *Limiter) resolveLocked(checks []Check) ([]*rate.Counter, int) {
	counters := make([]*rate.Counter, len(checks))
	for i, check := range checks {
		counters[i] = l.counters[check.Layer]
	}
	return counters, nextMissing(counters, 0)
}

func nextMissing(counters []*rate.Counter, from int) int {
	for i := from; i < len(counters); i++ {
		if counters[i] == nil {
			return i
		}
	}
	return -1
}

// newAdHocLocked creates the counter for an unknown layer. Caller must hold
// l.mu.
func (l *Limiter) newAdHocLocked(check Check) *rate.Counter {
	window, max := ClampAdHoc(check.Window, check.Max)
	c := rate.NewCounter(rate.Config{
		Window:        window,
		Max:           max,
		MaxEntries:    l.adHocEntries,
		SweepInterval: l.sweepInterval,
		ManualSweep:   true,
	}, l.clock)
	l.counters[check.Layer] = c
	return c
}

func (l *Limiter) adHocCountLocked() int {
	return len(l.counters) - len(l.static)
}

// ClampAdHoc forces caller-supplied bounds into the safe range used for
// layers that were not configured up front.
func ClampAdHoc(window time.Duration, max int) (time.Duration, int) {
	if window < rate.MinWindow {
		window = rate.MinWindow
	}
	if window > AdHocMaxWindow {
		window = AdHocMaxWindow
	}
	if max < 0 {
		max = 0
	}
	if max > AdHocMaxCeiling {
		max = AdHocMaxCeiling
	}
	return window, max
}
