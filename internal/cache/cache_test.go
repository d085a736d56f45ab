package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dbPath, ttl)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func TestCacheSetGet(t *testing.T) {
	c := setupTestCache(t, time.Hour)

	body := []byte(`{"name":"Test Track"}`)
	if err := c.Set("tracks/abc123", body); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := c.Get("tracks/abc123")
	if !ok {
		t.Fatal("Expected cache hit, got miss")
	}
	if string(got) != string(body) {
		t.Errorf("Get() = %s, want %s", got, body)
	}
}

func TestCacheMiss(t *testing.T) {
	c := setupTestCache(t, time.Hour)

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected cache miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := setupTestCache(t, 1*time.Nanosecond)

	if err := c.Set("tracks/abc123", []byte("data")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("tracks/abc123"); ok {
		t.Error("Expected expired entry to miss")
	}
}

func TestCacheReplace(t *testing.T) {
	c := setupTestCache(t, time.Hour)

	c.Set("key", []byte("old"))
	c.Set("key", []byte("new"))

	got, ok := c.Get("key")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(got) != "new" {
		t.Errorf("Get() = %s, want new", got)
	}
}

func TestCachePurge(t *testing.T) {
	c := setupTestCache(t, 1*time.Nanosecond)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	time.Sleep(10 * time.Millisecond)

	purged, err := c.Purge()
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 2 {
		t.Errorf("Purge() removed %d entries, want 2", purged)
	}
}
