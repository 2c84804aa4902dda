package bucket

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/sheltercache/internal/resource"
)

func TestDisk_PutAllRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	if err != nil {
		t.Fatalf("NewDisk error: %v", err)
	}
	ctx := context.Background()
	b, err := s.Open(ctx, "app-v1")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := b.Put(ctx, resource.Get("https://shelter.test/"), htmlResponse("v1")); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	// Occupy the second entry's path with a directory so its write fails.
	db := b.(*diskBucket)
	blocked := resource.Get("https://shelter.test/blocked.css")
	if err := os.MkdirAll(db.entryPath(resource.Key(blocked)), 0o755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}

	err = b.PutAll(ctx, []Entry{
		{Request: resource.Get("https://shelter.test/"), Response: htmlResponse("v2")},
		{Request: resource.Get("https://shelter.test/new.js"), Response: htmlResponse("new")},
		{Request: blocked, Response: htmlResponse("blocked")},
	})
	if err == nil {
		t.Fatal("expected PutAll to fail")
	}

	got, ok, err := b.Match(ctx, resource.Get("https://shelter.test/"))
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if string(got.Body) != "v1" {
		t.Errorf("body = %q, want previous value %q", got.Body, "v1")
	}
	if _, ok, _ := b.Match(ctx, resource.Get("https://shelter.test/new.js")); ok {
		t.Error("new entry should have been rolled back")
	}
}

func TestDisk_GetStats(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	if err != nil {
		t.Fatalf("NewDisk error: %v", err)
	}
	ctx := context.Background()

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}

	b, _ := s.Open(ctx, "app-v1")
	b.Put(ctx, resource.Get("https://shelter.test/a"), htmlResponse("a"))
	b.Put(ctx, resource.Get("https://shelter.test/b"), htmlResponse("b"))

	stats, err = s.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Buckets != 1 {
		t.Errorf("Buckets = %d, want 1", stats.Buckets)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalBytes <= 0 {
		t.Error("TotalBytes should be > 0")
	}
	if stats.Dir != dir {
		t.Errorf("Dir = %q, want %q", stats.Dir, dir)
	}
}

func TestDisk_BucketNamesAreEscaped(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewDisk(dir)
	ctx := context.Background()
	if _, err := s.Open(ctx, "a/b"); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a%2Fb", markerFile)); err != nil {
		t.Errorf("expected escaped bucket directory: %v", err)
	}
	if _, err := s.Open(ctx, ".."); err == nil {
		t.Error("expected error for bucket name \"..\"")
	}
}

func TestDefaultDir_XDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
	got, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir error: %v", err)
	}
	if want := filepath.Join("/tmp/xdg-cache", "sheltercache"); got != want {
		t.Errorf("DefaultDir = %q, want %q", got, want)
	}
}
