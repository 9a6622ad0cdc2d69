package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/audiolibrelab/mixcapture/internal/catalog"
)

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")
	store, err := catalog.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Error closing catalog: %v\n", err)
		}
	})
	return store
}

func TestAddAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := catalog.Recording{
		ID:        "6f1c0e0a-1d5b-4e55-9a7d-3c1b4b1f7a10",
		Path:      "/tmp/recording_20260101_120000.wav",
		Profile:   "default",
		StartedAt: time.Date(2026, 1, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC),
		Duration:  90*time.Second + 500*time.Millisecond,
		SizeBytes: 17280044,
		Sources:   []string{"out:0a", "in:0b"},
	}
	if err := store.Add(ctx, want); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := store.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recording mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := catalog.Recording{
			ID:        fmt.Sprintf("rec-%d", i),
			Path:      fmt.Sprintf("/tmp/rec-%d.wav", i),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, rec := range all {
		ids = append(ids, rec.ID)
	}
	if diff := cmp.Diff([]string{"rec-2", "rec-1", "rec-0"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(all[0].Sources) != 0 {
		t.Errorf("Expected no sources, got %v", all[0].Sources)
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 recordings, got %d", len(limited))
	}
}

func TestListEmpty(t *testing.T) {
	store := newTestStore(t)

	recs, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("Expected an empty non-nil list, got %#v", recs)
	}
}

func TestAddValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tcases := map[string]catalog.Recording{
		"missing_id":   {Path: "/tmp/a.wav"},
		"missing_path": {ID: "a"},
	}
	for name, rec := range tcases {
		t.Run(name, func(t *testing.T) {
			if err := store.Add(ctx, rec); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestAddKeepsWriteError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := catalog.Recording{ID: "failed", Path: "/tmp/failed.wav", StartedAt: time.Now(), Error: "disk full"}
	if err := store.Add(ctx, rec); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := store.Get(ctx, "failed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Error != "disk full" {
		t.Errorf("Expected error 'disk full', got %q", got.Error)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	store, err := catalog.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	if err := store.Add(ctx, catalog.Recording{ID: "a", Path: "/tmp/a.wav", StartedAt: time.Now()}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	store.Close()

	reopened, err := catalog.New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen catalog: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get(ctx, "a"); err != nil {
		t.Errorf("Expected recording to survive reopen, got %v", err)
	}
}
