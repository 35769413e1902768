package rate

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestCounter(t *testing.T, cfg Config) (*Counter, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := NewCounter(cfg, clk)
	t.Cleanup(c.Close)
	return c, clk
}

func TestCounterFixedWindowAllowsMaxThenDenies(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Minute, Max: 3, MaxEntries: 10})

	want := []bool{true, true, true, false}
	for i, allowed := range want {
		d := c.Check("x")
		if d.Allowed != allowed {
			t.Fatalf("check %d: expected allowed=%v, got %v", i+1, allowed, d.Allowed)
		}
	}

	denied := c.Check("x")
	if denied.Remaining != 0 {
		t.Fatalf("expected remaining 0 on denial, got %d", denied.Remaining)
	}
	if !denied.ResetAt.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("expected reset at window end, got %v", denied.ResetAt)
	}

	clk.Add(61 * time.Second)

	fresh := c.Check("x")
	if !fresh.Allowed {
		t.Fatal("expected allow after window passed")
	}
	if fresh.Remaining != 2 {
		t.Fatalf("expected fresh window with remaining 2, got %d", fresh.Remaining)
	}
	if !fresh.ResetAt.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("expected new reset time, got %v", fresh.ResetAt)
	}
}

func TestCounterResetsExactlyAtWindowEnd(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Minute, Max: 1, MaxEntries: 10})

	if !c.Check("x").Allowed {
		t.Fatal("expected first check allowed")
	}
	clk.Add(time.Minute - time.Second)
	if c.Check("x").Allowed {
		t.Fatal("expected denial before reset")
	}
	clk.Add(time.Second)
	if !c.Check("x").Allowed {
		t.Fatal("expected allow exactly at reset time")
	}
}

func TestCounterRemainingCountsDown(t *testing.T) {
	c, _ := newTestCounter(t, Config{Window: time.Minute, Max: 3, MaxEntries: 10})

	for i, want := range []int{2, 1, 0} {
		if got := c.Check("x").Remaining; got != want {
			t.Fatalf("check %d: expected remaining %d, got %d", i+1, want, got)
		}
	}
}

func TestCounterZeroMaxBlocksEverything(t *testing.T) {
	c, _ := newTestCounter(t, Config{Window: time.Minute, Max: 0, MaxEntries: 10})

	for i := 0; i < 3; i++ {
		if c.Check("x").Allowed {
			t.Fatalf("check %d: expected max=0 to deny", i+1)
		}
	}
}

func TestCounterClampsShortWindow(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Second, Max: 1, MaxEntries: 10})

	if got := c.Config().Window; got != MinWindow {
		t.Fatalf("expected window clamped to %v, got %v", MinWindow, got)
	}

	c.Check("x")
	clk.Add(2 * time.Second)
	if c.Check("x").Allowed {
		t.Fatal("expected clamped window to still deny after 2s")
	}
}

func TestCounterIdentifiersAreIndependent(t *testing.T) {
	c, _ := newTestCounter(t, Config{Window: time.Minute, Max: 1, MaxEntries: 10})

	if !c.Check("a").Allowed || !c.Check("b").Allowed {
		t.Fatal("expected distinct identifiers to have separate budgets")
	}
	if c.Check("a").Allowed {
		t.Fatal("expected a to be exhausted")
	}
}

func TestCounterNeverExceedsMaxEntries(t *testing.T) {
	const maxEntries = 100
	c, _ := newTestCounter(t, Config{Window: time.Hour, Max: 5, MaxEntries: maxEntries})

	for i := 0; i < maxEntries+250; i++ {
		c.Check("id-" + strconv.Itoa(i))
		if n := c.Len(); n > maxEntries {
			t.Fatalf("after %d inserts tracked %d entries, cap is %d", i+1, n, maxEntries)
		}
	}
}

func TestCounterEvictsOldestQuarter(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Hour, Max: 5, MaxEntries: 8})

	for i := 0; i < 8; i++ {
		c.Check("id-" + strconv.Itoa(i))
		clk.Add(time.Second)
	}
	c.Check("new")

	if got := c.Len(); got != 7 {
		t.Fatalf("expected 8-2+1=7 entries after eviction, got %d", got)
	}
	for _, evicted := range []string{"id-0", "id-1"} {
		if _, _, ok := c.Peek(evicted); ok {
			t.Fatalf("expected %s to be evicted", evicted)
		}
	}
	for _, kept := range []string{"id-2", "id-7", "new"} {
		if _, _, ok := c.Peek(kept); !ok {
			t.Fatalf("expected %s to be kept", kept)
		}
	}
}

func TestCounterExistingIdentifierDoesNotTriggerEviction(t *testing.T) {
	c, _ := newTestCounter(t, Config{Window: time.Hour, Max: 5, MaxEntries: 2})

	c.Check("a")
	c.Check("b")
	c.Check("a")

	if got := c.Len(); got != 2 {
		t.Fatalf("expected no eviction for a known identifier, got %d entries", got)
	}
}

func TestCounterSweepRemovesExpiredOnly(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Minute, Max: 5, MaxEntries: 10, SweepInterval: time.Hour})

	c.Check("old")
	clk.Add(30 * time.Second)
	c.Check("young")
	clk.Add(45 * time.Second)

	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("expected 1 expired entry swept, got %d", removed)
	}
	if _, _, ok := c.Peek("young"); !ok {
		t.Fatal("expected live entry to survive sweep")
	}
}

func TestCounterConcurrentChecksNeverExceedMax(t *testing.T) {
	const limit = 100
	c, _ := newTestCounter(t, Config{Window: time.Hour, Max: limit, MaxEntries: 10})

	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
	)
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if c.Check("shared").Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Fatalf("expected exactly %d admitted checks, got %d", limit, got)
	}
}

func TestCounterManualSweepLeavesExpiredEntries(t *testing.T) {
	c, clk := newTestCounter(t, Config{Window: time.Minute, Max: 1, MaxEntries: 10, SweepInterval: time.Minute, ManualSweep: true})

	c.Check("x")
	clk.Add(5 * time.Minute)

	if got := c.Len(); got != 1 {
		t.Fatalf("expected entry to wait for an explicit sweep, got %d entries", got)
	}
	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("expected explicit sweep to remove 1 entry, got %d", removed)
	}
	c.Close()
	c.Close()
}
