// Package cache implements the in-process, size-bounded TTL cache market
// data lookups pass through before (and after) hitting a provider. It keeps
// the teacher's Cache/Set/Get/Delete/SetJSON naming from
// internal/work/cache.go but swaps the SQLite-row backing store for an
// in-memory container/list-backed LRU, since the cache needs to sit on the
// hot path without a DB round trip.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/errs"
)

// Default TTLs per endpoint category, per spec.
const (
	TTLCurrentPrice  = 60 * time.Second
	TTLOptionsChain  = 300 * time.Second
	TTLPriceHistory  = 3600 * time.Second
	TTLTickerInfo    = 86400 * time.Second
	TTLExpirations   = 1800 * time.Second
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
}

// Entry is a read-only snapshot of one cache row, as surfaced by Stats.
type Entry struct {
	Key          string
	RemainingTTL time.Duration
	SizeBytes    int64
}

// Stats is the point-in-time snapshot returned by Cache.Stats.
type Stats struct {
	Hits             int64
	Misses           int64
	HitRate          float64
	EntryCount       int
	SizeBytes        int64
	MaxBytes         int64
	SizeUtilization  float64
	Entries          []Entry
}

// Cache is a thread-safe, size-bounded, TTL-evicting, LRU key-value store.
// All operations serialize under a single mutex; there are no suspension
// points, so callers should expect every call to return promptly.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List // front = most recently used
	items    map[string]*list.Element

	hits   int64
	misses int64

	log zerolog.Logger
}

// New builds a Cache bounded to maxBytes of estimated payload size.
func New(maxBytes int64, log zerolog.Logger) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		log:      log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the raw bytes stored under key iff a non-expired entry
// exists. Expired entries are removed lazily on access. Every call records
// a hit or a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(el)
		c.misses++
		return nil, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return e.value, true
}

// GetJSON is Get plus a JSON unmarshal into dest.
func (c *Cache) GetJSON(key string, dest any) (bool, error) {
	raw, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the given ttl, evicting least-recently-used
// entries if needed to stay within maxBytes. ttl must be positive.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", errs.InvalidTTL, ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(value))
	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		c.curBytes -= old.size
		old.value = value
		old.size = size
		old.expiresAt = time.Now().Add(ttl)
		c.curBytes += size
		c.ll.MoveToFront(el)
	} else {
		e := &entry{key: key, value: value, size: size, expiresAt: time.Now().Add(ttl)}
		el := c.ll.PushFront(e)
		c.items[key] = el
		c.curBytes += size
	}

	c.evictToFit()
	return nil
}

// SetJSON marshals value and stores it under key with the given ttl.
func (c *Cache) SetJSON(key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return c.Set(key, raw, ttl)
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear empties the cache. Hit/miss counters are left untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.curBytes = 0
}

// Stats reports hit/miss counters and size utilization, with entries sorted
// by ascending remaining TTL.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entries := make([]Entry, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		entries = append(entries, Entry{
			Key:          e.key,
			RemainingTTL: e.expiresAt.Sub(now),
			SizeBytes:    e.size,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RemainingTTL < entries[j].RemainingTTL })

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	var util float64
	if c.maxBytes > 0 {
		util = float64(c.curBytes) / float64(c.maxBytes)
	}

	return Stats{
		Hits:            c.hits,
		Misses:          c.misses,
		HitRate:         hitRate,
		EntryCount:      c.ll.Len(),
		SizeBytes:       c.curBytes,
		MaxBytes:        c.maxBytes,
		SizeUtilization: util,
		Entries:         entries,
	}
}

// evictToFit evicts least-recently-used entries until the cache fits within
// maxBytes. Callers must hold c.mu.
func (c *Cache) evictToFit() {
	if c.maxBytes <= 0 {
		return
	}
	for c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.log.Debug().Str("key", e.key).Msg("evicting entry, cache over capacity")
		c.removeElement(back)
	}
}

// removeElement unlinks el from both the list and the index map. Callers
// must hold c.mu.
func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.curBytes -= e.size
}
