package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"scriptroom/api/internal/document"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func testProjects() []document.Project {
	return []document.Project{
		{
			ID:           "prj-a",
			Metadata:     document.Metadata{Title: "A", Country: document.CountryNigeria},
			Content:      []document.Block{{ID: "a1", Type: document.BlockSceneHeading, Content: "INT. ROOM - DAY"}},
			LastModified: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:       "prj-b",
			Metadata: document.Metadata{Title: "B", Country: document.CountrySierraLeone, Logline: "A ferry that never leaves."},
			Content: []document.Block{
				{ID: "b1", Type: document.BlockSceneHeading, Content: "EXT. WHARF - NIGHT"},
				{ID: "b2", Type: document.BlockAction, Content: "Fog."},
			},
			LastModified: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}
}

func assertSameProjects(t *testing.T, got, want []document.Project) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d projects, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Metadata != want[i].Metadata || !got[i].LastModified.Equal(want[i].LastModified) {
			t.Fatalf("project %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
		if len(got[i].Content) != len(want[i].Content) {
			t.Fatalf("project %d block count mismatch", i)
		}
		for j := range want[i].Content {
			if got[i].Content[j] != want[i].Content[j] {
				t.Fatalf("project %d block %d mismatch: %+v", i, j, got[i].Content[j])
			}
		}
	}
}

func TestRedisCacheSaveAndLoad(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	c.SaveAll(ctx, "owner-1", testProjects())
	assertSameProjects(t, c.LoadAll(ctx, "owner-1"), testProjects())
}

func TestRedisCacheMissingSnapshotIsEmpty(t *testing.T) {
	c, _ := setupTestRedis(t)
	if got := c.LoadAll(context.Background(), "nobody"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
}

func TestRedisCacheMalformedSnapshotIsEmpty(t *testing.T) {
	c, s := setupTestRedis(t)
	if err := s.Set(snapshotKey("owner-1"), "{not json"); err != nil {
		t.Fatalf("seed malformed snapshot: %v", err)
	}
	if got := c.LoadAll(context.Background(), "owner-1"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
}

func TestRedisCacheUnreachableIsEmpty(t *testing.T) {
	c, s := setupTestRedis(t)
	c.SaveAll(context.Background(), "owner-1", testProjects())
	s.Close()

	if got := c.LoadAll(context.Background(), "owner-1"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
	// must not panic or block
	c.SaveAll(context.Background(), "owner-1", testProjects())
}

func TestRedisCacheOwnerIsolation(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	c.SaveAll(ctx, "owner-1", testProjects())
	c.SaveAll(ctx, "owner-2", testProjects()[:1])

	if got := c.LoadAll(ctx, "owner-2"); len(got) != 1 || got[0].ID != "prj-a" {
		t.Fatalf("unexpected owner-2 snapshot: %+v", got)
	}
	if got := c.LoadAll(ctx, "owner-1"); len(got) != 2 {
		t.Fatalf("unexpected owner-1 snapshot: %+v", got)
	}
}

func TestDecodeSnapshotSkipsInvalidProjects(t *testing.T) {
	payload := []byte(`[
		{"id":"ok","metadata":{"title":"T","country":"Nigeria"},"content":[{"id":"x","type":"action","content":""}],"lastModifiedISO":"2026-01-01T00:00:00Z"},
		{"id":"empty","metadata":{"title":"T"},"content":[],"lastModifiedISO":"2026-01-01T00:00:00Z"},
		{"id":"ok","metadata":{"title":"dup"},"content":[{"id":"y","type":"action","content":""}],"lastModifiedISO":"2026-01-01T00:00:00Z"}
	]`)
	got := decodeSnapshot("owner", payload)
	if len(got) != 1 || got[0].ID != "ok" || got[0].Metadata.Title != "T" {
		t.Fatalf("unexpected projects: %+v", got)
	}
}

func TestFileCacheSaveAndLoad(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	ctx := context.Background()

	c.SaveAll(ctx, "owner/1", testProjects())
	assertSameProjects(t, c.LoadAll(ctx, "owner/1"), testProjects())

	c.SaveAll(ctx, "owner/1", testProjects()[1:])
	assertSameProjects(t, c.LoadAll(ctx, "owner/1"), testProjects()[1:])
}

func TestFileCacheMalformedSnapshotIsEmpty(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	if err := os.WriteFile(c.path("owner-1"), []byte("[{"), 0o644); err != nil {
		t.Fatalf("seed malformed snapshot: %v", err)
	}
	if got := c.LoadAll(context.Background(), "owner-1"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
	if got := c.LoadAll(context.Background(), "owner-2"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	if got := c.LoadAll(ctx, "owner-1"); len(got) != 0 {
		t.Fatalf("expected empty collection, got %d", len(got))
	}
	c.SaveAll(ctx, "owner-1", testProjects())
	assertSameProjects(t, c.LoadAll(ctx, "owner-1"), testProjects())
}
