package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/errs"
)

func newTestCache(maxBytes int64) *Cache {
	return New(maxBytes, zerolog.Nop())
}

func TestSetRejectsNonPositiveTTL(t *testing.T) {
	c := newTestCache(1024)
	err := c.Set("k", []byte("v"), 0)
	if err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if !errors.Is(err, errs.InvalidTTL) {
		t.Fatalf("expected InvalidTTL, got %v", err)
	}
}

func TestGetHitAndMiss(t *testing.T) {
	c := newTestCache(1024)
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := c.Get("k")
	if !ok || string(v) != "v" {
		t.Fatalf("expected hit with value v, got %q ok=%v", v, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit 1 miss, got %+v", stats)
	}
}

func TestGetExpiresAfterTTL(t *testing.T) {
	c := newTestCache(1024)
	if err := c.Set("k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to be expired")
	}
}

func TestEvictionKeepsWithinMaxBytes(t *testing.T) {
	c := newTestCache(10)
	_ = c.Set("a", []byte("12345"), time.Minute)
	_ = c.Set("b", []byte("12345"), time.Minute)
	// Touch "a" so it becomes most-recently-used; "b" should be evicted next.
	c.Get("a")
	_ = c.Set("c", []byte("12345"), time.Minute)

	stats := c.Stats()
	if stats.SizeBytes > 10 {
		t.Fatalf("expected size <= 10, got %d", stats.SizeBytes)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to have been evicted as least-recently-used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive eviction, it was recently used")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(1024)
	_ = c.Set("k", []byte("v"), time.Minute)
	if !c.Delete("k") {
		t.Fatalf("expected Delete to report key was present")
	}
	if c.Delete("k") {
		t.Fatalf("expected second Delete to report absent")
	}

	_ = c.Set("k2", []byte("v"), time.Minute)
	c.Clear()
	if stats := c.Stats(); stats.EntryCount != 0 {
		t.Fatalf("expected empty cache after Clear, got %+v", stats)
	}
}

func TestStatsEntriesSortedByRemainingTTL(t *testing.T) {
	c := newTestCache(1024)
	_ = c.Set("long", []byte("v"), time.Hour)
	_ = c.Set("short", []byte("v"), time.Second)

	stats := c.Stats()
	if len(stats.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stats.Entries))
	}
	if stats.Entries[0].Key != "short" {
		t.Fatalf("expected shortest-remaining-ttl entry first, got %s", stats.Entries[0].Key)
	}
}

func TestSetJSONAndGetJSON(t *testing.T) {
	c := newTestCache(1024)
	type payload struct {
		Name string `json:"name"`
	}
	if err := c.SetJSON("k", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var got payload
	ok, err := c.GetJSON("k", &got)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !ok || got.Name != "x" {
		t.Fatalf("expected payload{x}, got %+v ok=%v", got, ok)
	}
}
