package internal

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewSessionIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := NewSessionID(now)
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}

	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "ws" {
		t.Fatalf("unexpected id shape %q", id)
	}
	ms, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil || ms != now.UnixMilli() {
		t.Fatalf("timestamp segment mismatch: %q (%v)", parts[1], err)
	}
	if len(parts[2]) != sessionRandomLength {
		t.Fatalf("expected %d random chars, got %q", sessionRandomLength, parts[2])
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := NewSessionID(now)
		if err != nil {
			t.Fatalf("NewSessionID: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestRandomStringAlphabet(t *testing.T) {
	s, err := RandomString(500)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	if len(s) != 500 {
		t.Fatalf("expected 500 chars, got %d", len(s))
	}
	for _, c := range s {
		if !strings.ContainsRune(alphabet, c) {
			t.Fatalf("unexpected char %q", c)
		}
	}
	if _, err := RandomString(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
