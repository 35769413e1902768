package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

var testEpoch = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func newTestClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testEpoch)
	return clk
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestStore(t *testing.T, clk clock.Clock) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, RedisStoreConfig{Prefix: "wst", KeyGrace: time.Hour, Clock: clk})
	return store, mr, rdb
}

func testRecord(id string, expiresAt time.Time) *Record {
	return &Record{
		SessionID:      id,
		PartnerID:      "partner-1",
		CredentialHash: "c0ffee",
		CreatedAt:      testEpoch,
		ExpiresAt:      expiresAt,
		LastActivityAt: testEpoch,
		IPAddress:      "198.51.100.7",
		UserAgent:      "widget/1.0",
		Origin:         "https://shop.example",
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	clk := newTestClock()
	store, mr, _ := newTestStore(t, clk)
	ctx := context.Background()

	rec := testRecord("ws_a", testEpoch.Add(24*time.Hour))
	if err := store.Set(ctx, rec); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "ws_a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PartnerID != rec.PartnerID || got.CredentialHash != rec.CredentialHash || got.Origin != rec.Origin {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
	if got.UserID != "" {
		t.Fatalf("expected empty user id, got %q", got.UserID)
	}

	if ttl := mr.TTL("wst:ws_a"); ttl != 25*time.Hour {
		t.Fatalf("expected key ttl of lifetime plus grace, got %v", ttl)
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	store, _, _ := newTestStore(t, newTestClock())

	_, err := store.Get(context.Background(), "ws_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreUpdateOnlyIfExists(t *testing.T) {
	store, mr, _ := newTestStore(t, newTestClock())
	ctx := context.Background()

	user := "user-9"
	err := store.Update(ctx, "ws_ghost", Patch{UserID: &user})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("wst:ws_ghost") {
		t.Fatal("update must not create a record")
	}

	if err := store.Set(ctx, testRecord("ws_b", testEpoch.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}
	seen := testEpoch.Add(10 * time.Minute)
	if err := store.Update(ctx, "ws_b", Patch{UserID: &user, LastActivityAt: &seen}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, "ws_b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != user || !got.LastActivityAt.Equal(seen) {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.PartnerID != "partner-1" {
		t.Fatalf("patch clobbered untouched fields: %+v", got)
	}
}

func TestRedisStoreDeleteIdempotent(t *testing.T) {
	store, _, rdb := newTestStore(t, newTestClock())
	ctx := context.Background()

	if err := store.Set(ctx, testRecord("ws_c", testEpoch.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Delete(ctx, "ws_c"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}

	if n, err := rdb.ZCard(ctx, "wst:exp").Result(); err != nil || n != 0 {
		t.Fatalf("expected empty expiry index, got %d (%v)", n, err)
	}
	if _, err := store.Get(ctx, "ws_c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreQueryRange(t *testing.T) {
	store, _, _ := newTestStore(t, newTestClock())
	ctx := context.Background()

	for i, id := range []string{"ws_1", "ws_2", "ws_3"} {
		rec := testRecord(id, testEpoch.Add(time.Duration(i+1)*time.Hour))
		if err := store.Set(ctx, rec); err != nil {
			t.Fatalf("set %s: %v", id, err)
		}
	}

	pivot := testEpoch.Add(2 * time.Hour)
	cases := []struct {
		op   Op
		want []string
	}{
		{OpLess, []string{"ws_1"}},
		{OpLessEqual, []string{"ws_1", "ws_2"}},
		{OpGreater, []string{"ws_3"}},
		{OpGreaterEqual, []string{"ws_2", "ws_3"}},
	}
	for _, tc := range cases {
		got, err := store.QueryRange(ctx, RangeQuery{Field: FieldExpiresAt, Op: tc.op, Value: pivot})
		if err != nil {
			t.Fatalf("query %s: %v", tc.op, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("query %s: expected %v, got %v", tc.op, tc.want, got)
		}
	}

	limited, err := store.QueryRange(ctx, RangeQuery{Field: FieldExpiresAt, Op: OpGreaterEqual, Value: testEpoch, Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 limited results, got %v (%v)", limited, err)
	}

	_, err = store.QueryRange(ctx, RangeQuery{Field: "created_at", Op: OpLess, Value: pivot})
	if !errors.Is(err, ErrUnsupportedQuery) {
		t.Fatalf("expected ErrUnsupportedQuery, got %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newTestStore(t, newTestClock())
	mr.Close()

	_, err := store.Get(context.Background(), "ws_x")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := store.Set(context.Background(), testRecord("ws_x", testEpoch.Add(time.Hour))); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on set, got %v", err)
	}
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	store, _, rdb := newTestStore(t, newTestClock())
	ctx := context.Background()

	if err := rdb.HSet(ctx, "wst:ws_bad", "pid", "p", "ea", "not-a-number").Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(ctx, "ws_bad"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}
