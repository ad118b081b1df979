package badger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open badger store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestPutAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	mem := &types.Memory{
		Hash:           "bdg-roundtrip-1",
		Content:        "notes from the capacity planning review",
		Type:           types.TypeReference,
		Importance:     0.7,
		Relevance:      0.7,
		Tags:           []string{"planning", "reference"},
		Connections:    []string{"bdg-peer-1", "bdg-peer-2"},
		Meta:           map[string]string{"origin": "review-board"},
		Embedding:      []float64{0.1, 0.2, 0.3},
		CreatedAt:      created,
		LastAccessedAt: created,
	}

	if err := store.PutRecord(ctx, mem); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "bdg-roundtrip-1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}

	if got.Content != mem.Content {
		t.Errorf("content = %q, want %q", got.Content, mem.Content)
	}
	if got.Type != types.TypeReference {
		t.Errorf("type = %q, want %q", got.Type, types.TypeReference)
	}
	if !reflect.DeepEqual(got.Tags, mem.Tags) {
		t.Errorf("tags = %v, want %v", got.Tags, mem.Tags)
	}
	if !reflect.DeepEqual(got.Connections, mem.Connections) {
		t.Errorf("connections = %v, want %v", got.Connections, mem.Connections)
	}
	if !reflect.DeepEqual(got.Meta, mem.Meta) {
		t.Errorf("meta = %v, want %v", got.Meta, mem.Meta)
	}
	if !reflect.DeepEqual(got.Embedding, mem.Embedding) {
		t.Errorf("embedding = %v, want %v", got.Embedding, mem.Embedding)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
}

func TestPutRecordDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutRecord(ctx, &types.Memory{Hash: "bdg-defaults", Content: "x"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "bdg-defaults")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.Type != types.TypeStandard {
		t.Errorf("default type = %q, want %q", got.Type, types.TypeStandard)
	}
	if got.CreatedAt.IsZero() || got.LastAccessedAt.IsZero() {
		t.Error("timestamps should be defaulted, got zero values")
	}
}

func TestGetByHashNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByHash(context.Background(), "bdg-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRelevance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutRecord(ctx, &types.Memory{Hash: "bdg-rel-1", Content: "x", Relevance: 0.9}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := store.UpdateRelevance(ctx, "bdg-rel-1", 0.12); err != nil {
		t.Fatalf("UpdateRelevance failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "bdg-rel-1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.Relevance != 0.12 {
		t.Errorf("relevance = %v, want 0.12", got.Relevance)
	}

	if err := store.UpdateRelevance(ctx, "bdg-rel-missing", 0.5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementConnections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutRecord(ctx, &types.Memory{Hash: "bdg-conn-1", Content: "x"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := store.IncrementConnections(ctx, "bdg-conn-1", "bdg-conn-2"); err != nil {
		t.Fatalf("IncrementConnections failed: %v", err)
	}
	// Duplicate peer is a no-op.
	if err := store.IncrementConnections(ctx, "bdg-conn-1", "bdg-conn-2"); err != nil {
		t.Fatalf("duplicate IncrementConnections failed: %v", err)
	}
	if err := store.IncrementConnections(ctx, "bdg-conn-1", "bdg-conn-3"); err != nil {
		t.Fatalf("IncrementConnections failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "bdg-conn-1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	want := []string{"bdg-conn-2", "bdg-conn-3"}
	if !reflect.DeepEqual(got.Connections, want) {
		t.Errorf("connections = %v, want %v", got.Connections, want)
	}
}

func TestFindAssociation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assoc := &types.Association{
		SourceHash: "bdg-src",
		TargetHash: "bdg-dst",
		Similarity: 0.45,
		Class:      types.ClassSubtlePattern,
		Horizon:    types.HorizonMonthly,
		Importance: 0.5,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := store.PutRecord(ctx, assoc.Record()); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	got, err := store.FindAssociation(ctx, types.PairKey("bdg-dst", "bdg-src"))
	if err != nil {
		t.Fatalf("FindAssociation failed: %v", err)
	}
	if got.SourceHash != "bdg-src" || got.TargetHash != "bdg-dst" {
		t.Errorf("endpoints = %s/%s, want bdg-src/bdg-dst", got.SourceHash, got.TargetHash)
	}
	if got.Class != types.ClassSubtlePattern {
		t.Errorf("class = %q, want %q", got.Class, types.ClassSubtlePattern)
	}

	if _, err := store.FindAssociation(ctx, types.PairKey("bdg-no-a", "bdg-no-b")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkArchived(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutRecord(ctx, &types.Memory{Hash: "bdg-arch-1", Content: "fading"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := store.MarkArchived(ctx, "bdg-arch-1", "ref-a"); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}

	got, err := store.GetByHash(ctx, "bdg-arch-1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if !got.Archived || got.ArchiveRef != "ref-a" {
		t.Errorf("archived = %v ref = %q, want true / ref-a", got.Archived, got.ArchiveRef)
	}

	// Same ref again is idempotent.
	if err := store.MarkArchived(ctx, "bdg-arch-1", "ref-a"); err != nil {
		t.Fatalf("idempotent MarkArchived failed: %v", err)
	}

	// A different ref is a conflict.
	if err := store.MarkArchived(ctx, "bdg-arch-1", "ref-b"); !errors.Is(err, storage.ErrAlreadyArchived) {
		t.Errorf("expected ErrAlreadyArchived, got %v", err)
	}

	if err := store.MarkArchived(ctx, "bdg-arch-missing", "ref-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMemoriesScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)

	seed := []*types.Memory{
		{Hash: "bdg-ws-recent", Content: "recent", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-time.Hour)},
		{Hash: "bdg-ws-touched", Content: "old but touched", CreatedAt: old, LastAccessedAt: now.Add(-3 * time.Hour)},
		{Hash: "bdg-ws-old", Content: "old", CreatedAt: old, LastAccessedAt: old},
		{Hash: "bdg-ws-summary", Content: "cluster summary", Type: types.TypeSummary, CreatedAt: now, LastAccessedAt: now},
	}
	for _, m := range seed {
		if err := store.PutRecord(ctx, m); err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}
	}

	recent, err := store.GetMemories(ctx, storage.WorkingSetFilter{
		Scope: storage.ScopeRecent,
		Since: now.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("GetMemories(recent) failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("recent working set = %d memories, want 2", len(recent))
	}

	all, err := store.GetMemories(ctx, storage.WorkingSetFilter{Scope: storage.ScopeAll})
	if err != nil {
		t.Fatalf("GetMemories(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all working set = %d memories, want 3", len(all))
	}

	withRecords, err := store.GetMemories(ctx, storage.WorkingSetFilter{
		Scope:              storage.ScopeAll,
		IncludeRecordTypes: true,
	})
	if err != nil {
		t.Fatalf("GetMemories(records) failed: %v", err)
	}
	if len(withRecords) != 4 {
		t.Errorf("record-inclusive working set = %d memories, want 4", len(withRecords))
	}

	limited, err := store.GetMemories(ctx, storage.WorkingSetFilter{Scope: storage.ScopeAll, Limit: 1})
	if err != nil {
		t.Fatalf("GetMemories(limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited working set = %d memories, want 1", len(limited))
	}
	// Deterministic ordering: newest first.
	if limited[0].Hash != "bdg-ws-recent" {
		t.Errorf("limited[0] = %s, want bdg-ws-recent", limited[0].Hash)
	}
}
