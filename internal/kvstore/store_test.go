package kvstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

func newTestStore(quota int) (*Store, *MemoryBackend, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend(quota)
	store := New(backend, zap.NewNop(), WithClock(clock.Now), WithStaleAfter(7*24*time.Hour))
	return store, backend, clock
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(0)

	type project struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}

	cases := []struct {
		name  string
		value any
		dst   func() any
	}{
		{"string", "hello", func() any { return new(string) }},
		{"number", 42.5, func() any { return new(float64) }},
		{"bool", true, func() any { return new(bool) }},
		{"map", map[string]any{"a": 1.0, "b": []any{"x", nil}}, func() any { return new(map[string]any) }},
		{"struct", project{ID: "p1", Tags: []string{"roof", "deck"}}, func() any { return new(project) }},
		{"list", []int{1, 2, 3}, func() any { return new([]int) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.Set(ctx, "k-"+tc.name, tc.value); err != nil {
				t.Fatalf("set: %v", err)
			}
			dst := tc.dst()
			ok, err := store.Get(ctx, "k-"+tc.name, dst)
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			got := reflect.ValueOf(dst).Elem().Interface()
			if !reflect.DeepEqual(got, tc.value) {
				t.Fatalf("round trip mismatch: got %#v want %#v", got, tc.value)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, _, _ := newTestStore(0)
	var v string
	ok, err := store.Get(context.Background(), "missing", &v)
	if err != nil || ok {
		t.Fatalf("expected missing false,nil; got %v,%v", ok, err)
	}
}

func TestStore_EntryTimestamp(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(0)
	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, ok, err := store.GetEntry(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get entry: %v,%v", ok, err)
	}
	if !entry.Timestamp.Equal(clock.t) {
		t.Fatalf("expected timestamp %v, got %v", clock.t, entry.Timestamp)
	}
}

func TestStore_AppendToNonListLeavesValue(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(0)
	if err := store.Set(ctx, "queue", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := store.Append(ctx, "queue", "item")
	if !errors.Is(err, ErrNotList) {
		t.Fatalf("expected ErrNotList, got %v", err)
	}

	var got map[string]string
	if _, err := store.Get(ctx, "queue", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]string{"a": "b"}) {
		t.Fatalf("stored value changed: %+v", got)
	}
}

func TestStore_AppendCreatesAndCaps(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(0)

	for i := 1; i <= 5; i++ {
		if err := store.AppendCapped(ctx, "log", i, 3); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	var got []int
	if _, err := store.Get(ctx, "log", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Fatalf("expected newest three, got %v", got)
	}
}

func TestStore_QuotaEvictsStaleAndRetries(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(250)
	payload := strings.Repeat("x", 100)

	now := clock.t
	clock.t = now.Add(-8 * 24 * time.Hour)
	if err := store.Set(ctx, "old", payload); err != nil {
		t.Fatalf("set old: %v", err)
	}
	clock.t = now

	if err := store.Set(ctx, "new", payload); err != nil {
		t.Fatalf("expected set to succeed after eviction, got %v", err)
	}
	if ok, _ := store.Has(ctx, "old"); ok {
		t.Fatalf("expected stale entry to be evicted")
	}
	if backend.Used() > 250 {
		t.Fatalf("quota overrun: %d", backend.Used())
	}
}

func TestStore_QuotaWithoutStaleEntriesFails(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(250)
	payload := strings.Repeat("x", 100)

	if err := store.Set(ctx, "a", payload); err != nil {
		t.Fatalf("set a: %v", err)
	}
	err := store.Set(ctx, "b", payload)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if ok, _ := store.Has(ctx, "a"); !ok {
		t.Fatalf("fresh entry must survive eviction")
	}
}

func TestStore_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	root, _, _ := newTestStore(0)
	a := root.WithPrefix("origin:a:")
	b := root.WithPrefix("origin:b:")

	if err := a.Set(ctx, "auth_token", "ta"); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := b.Set(ctx, "auth_token", "tb"); err != nil {
		t.Fatalf("set b: %v", err)
	}

	keys, err := a.Keys(ctx)
	if err != nil || !reflect.DeepEqual(keys, []string{"auth_token"}) {
		t.Fatalf("unexpected keys for a: %v %v", keys, err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := a.Has(ctx, "auth_token"); ok {
		t.Fatalf("expected a cleared")
	}
	var tok string
	if ok, _ := b.Get(ctx, "auth_token", &tok); !ok || tok != "tb" {
		t.Fatalf("expected b untouched, got %q", tok)
	}
}

func TestStore_RemoveMultiple(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(0)
	_ = store.Set(ctx, "a", 1)
	_ = store.Set(ctx, "b", 2)
	_ = store.Set(ctx, "c", 3)

	if err := store.Remove(ctx, "a", "b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	keys, _ := store.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"c"}) {
		t.Fatalf("expected only c, got %v", keys)
	}
	if backend.Used() == 0 {
		t.Fatalf("expected usage for remaining entry")
	}
}
