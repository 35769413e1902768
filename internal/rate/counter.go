package rate

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// MinWindow is the shortest window a counter accepts. Shorter windows are
	// clamped up to it.
	MinWindow = 60 * time.Second

	defaultMaxEntries    = 10000
	defaultSweepInterval = time.Minute
	evictFraction        = 4
)

// Config holds counter tuning parameters.
type Config struct {
	Window        time.Duration
	Max           int
	MaxEntries    int
	SweepInterval time.Duration
	// ManualSweep disables the background sweep. The owner calls Sweep.
	ManualSweep bool
}

// Decision is the outcome of a single [Counter.Check].
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

type entry struct {
	count         int
	windowResetAt time.Time
	firstSeenAt   time.Time
}

// Counter is a fixed-window counter for a single purpose. It is safe for
// concurrent use; all map access happens under one mutex.
type Counter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	clock   clock.Clock

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Normalize applies defaults and clamps a config to the counter's floor.
func Normalize(cfg Config) Config {
	if cfg.Window < MinWindow {
		cfg.Window = MinWindow
	}
	if cfg.Max < 0 {
		cfg.Max = 0
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return cfg
}

// NewCounter creates a [Counter] and starts its background sweep unless
// cfg.ManualSweep is set. A nil clk uses the wall clock.
func NewCounter(cfg Config, clk clock.Clock) *Counter {
	if clk == nil {
		clk = clock.New()
	}
	c := &Counter{
		entries: make(map[string]*entry),
		config:  Normalize(cfg),
		clock:   clk,
		done:    make(chan struct{}),
	}

	if !c.config.ManualSweep {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	return c
}

// Config returns the normalized configuration the counter runs with.
func (c *Counter) Config() Config {
	return c.config
}

// Check records one attempt for id and reports whether it is within budget.
func (c *Counter) Check(id string) Decision {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || !now.Before(e.windowResetAt) {
		if !ok && len(c.entries) >= c.config.MaxEntries {
			c.evictOldestLocked()
		}
		resetAt := now.Add(c.config.Window)
		if c.config.Max <= 0 {
			// Nothing is admitted, but the identifier is still tracked so the
			// caller gets a stable reset time.
			c.entries[id] = &entry{count: 0, windowResetAt: resetAt, firstSeenAt: now}
			return Decision{Allowed: false, Remaining: 0, Limit: 0, ResetAt: resetAt}
		}
		c.entries[id] = &entry{count: 1, windowResetAt: resetAt, firstSeenAt: now}
		return Decision{
			Allowed:   true,
			Remaining: c.config.Max - 1,
			Limit:     c.config.Max,
			ResetAt:   resetAt,
		}
	}

	if e.count < c.config.Max {
		e.count++
		return Decision{
			Allowed:   true,
			Remaining: c.config.Max - e.count,
			Limit:     c.config.Max,
			ResetAt:   e.windowResetAt,
		}
	}

	return Decision{
		Allowed:   false,
		Remaining: 0,
		Limit:     c.config.Max,
		ResetAt:   e.windowResetAt,
	}
}

// Peek reports the current count and reset time for id without recording an
// attempt.
func (c *Counter) Peek(id string) (count int, resetAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return 0, time.Time{}, false
	}
	return e.count, e.windowResetAt, true
}

// Len returns the number of tracked identifiers.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep deletes every entry whose window has passed and returns how many were
// removed.
func (c *Counter) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if !now.Before(e.windowResetAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. Check keeps working after Close.
func (c *Counter) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

func (c *Counter) sweepLoop() {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// evictOldestLocked drops the oldest quarter of entries by first-seen time.
// Caller must hold c.mu.
func (c *Counter) evictOldestLocked() {
	n := len(c.entries) / evictFraction
	if n < 1 {
		n = 1
	}

	type aged struct {
		id        string
		firstSeen time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, aged{id: id, firstSeen: e.firstSeenAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].firstSeen.Before(all[j].firstSeen)
	})

	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].id)
	}
}
