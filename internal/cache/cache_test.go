package cache

import (
	"testing"
	"time"
)

func TestTTL_GetBeforeAndAfterExpiry(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	c := NewTTL[int]().WithClock(func() time.Time { return now })

	c.Set("summary", 42, time.Minute)
	if v, ok := c.Get("summary"); !ok || v != 42 {
		t.Fatalf("expected 42, got %v %v", v, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("summary"); ok {
		t.Fatalf("expected entry to expire at its deadline")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy delete on read, len=%d", c.Len())
	}
}

func TestTTL_ExpiredEntriesStayUntilRead(t *testing.T) {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	c := NewTTL[string]().WithClock(func() time.Time { return now })

	c.Set("a", "x", time.Second)
	c.Set("b", "y", time.Hour)
	now = now.Add(time.Minute)

	if c.Len() != 2 {
		t.Fatalf("expected no proactive eviction, len=%d", c.Len())
	}
	if v, ok := c.Get("b"); !ok || v != "y" {
		t.Fatalf("expected b alive, got %q %v", v, ok)
	}
}

func TestTTL_DeleteAndMissing(t *testing.T) {
	c := NewTTL[string]()
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
	c.Set("k", "v", time.Hour)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected deleted")
	}
}
