package errlog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

type failingAppender struct{ calls int }

func (f *failingAppender) AppendCapped(context.Context, string, any, int) error {
	f.calls++
	return errors.New("quota exceeded")
}

func TestCore_WritesWarnAndAbove(t *testing.T) {
	ctx := context.Background()
	store := kvstore.New(kvstore.NewMemoryBackend(0), zap.NewNop())
	logger := zap.New(NewCore(store, 3)).With(zap.String("origin", "o1"))

	logger.Info("ignored")
	logger.Warn("slow response", zap.Int("status", 504))
	logger.Error("quote submit failed")

	var entries []domain.ErrorEntry
	ok, err := store.Get(ctx, domain.KeyErrorLog, &entries)
	if err != nil || !ok {
		t.Fatalf("expected error log, got ok=%v err=%v", ok, err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Level != "warn" || first.Message != "slow response" || first.ID == "" {
		t.Fatalf("unexpected entry %+v", first)
	}
	if !strings.Contains(first.Context, `"status":504`) || !strings.Contains(first.Context, `"origin":"o1"`) {
		t.Fatalf("expected fields in context, got %q", first.Context)
	}
	if entries[0].ID == entries[1].ID {
		t.Fatalf("expected unique ids")
	}
}

func TestCore_CapsEntries(t *testing.T) {
	ctx := context.Background()
	store := kvstore.New(kvstore.NewMemoryBackend(0), zap.NewNop())
	logger := zap.New(NewCore(store, 2))

	for _, msg := range []string{"a", "b", "c"} {
		logger.Error(msg)
	}

	var entries []domain.ErrorEntry
	_, _ = store.Get(ctx, domain.KeyErrorLog, &entries)
	if len(entries) != 2 || entries[0].Message != "b" || entries[1].Message != "c" {
		t.Fatalf("expected newest two entries, got %+v", entries)
	}
}

func TestCore_StoreFailureIsSwallowed(t *testing.T) {
	app := &failingAppender{}
	core := NewCore(app, 0)
	logger := zap.New(core)

	logger.Error("boom")
	if app.calls != 1 {
		t.Fatalf("expected one append attempt, got %d", app.calls)
	}
	if core.max != DefaultMaxEntries {
		t.Fatalf("expected default max, got %d", core.max)
	}
}
