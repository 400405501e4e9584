package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLifetime = 10 * time.Minute
	defaultMaxSize  = 1000
)

type xsrfEntry struct {
	expiresAt time.Time
	seq       uint64 // matches the entry's slot in the order slice
}

// orderSlot records one insertion. A slot is stale when its key is gone or
// was deleted and recreated under a newer sequence number.
type orderSlot struct {
	key string
	seq uint64
}

// XsrfCache is an in-memory store for anti-forgery tokens with per-entry
// expiration and a capacity limit. A token is created when a form is rendered
// and deleted when the matching POST succeeds; abandoned tokens expire via the
// lazy check on reads or the periodic Cleanup sweep. When the store is full,
// the insertion-oldest live entry is evicted first.
//
// All methods are safe for concurrent use.
type XsrfCache struct {
	mu       sync.Mutex
	entries  map[string]xsrfEntry
	order    []orderSlot // insertion order; may hold stale slots
	stale    int         // stale slot count, drives compaction
	seq      uint64
	lifetime time.Duration
	maxSize  int

	now func() time.Time // test hook
}

// NewXsrfCache returns a cache with the default lifetime (10 min) and
// capacity (1000 entries).
func NewXsrfCache() *XsrfCache {
	return &XsrfCache{
		entries:  make(map[string]xsrfEntry),
		lifetime: defaultLifetime,
		maxSize:  defaultMaxSize,
		now:      time.Now,
	}
}

// Create generates a fresh random token, stores it with the default lifetime
// and returns it. Tokens are version-4 UUIDs (122 bits of entropy).
func (c *XsrfCache) Create() string {
	token := uuid.NewString()
	c.Set(token, time.Time{}, 0)
	return token
}

// Set stores or overwrites key. A non-zero expiresAt takes precedence over
// lifetime; a non-zero lifetime counts from now; otherwise the default
// lifetime applies. A full store evicts its oldest entry before inserting.
func (c *XsrfCache) Set(key string, expiresAt time.Time, lifetime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !expiresAt.IsZero():
	case lifetime != 0:
		expiresAt = c.now().Add(lifetime)
	default:
		expiresAt = c.now().Add(c.lifetime)
	}

	if existing, exists := c.entries[key]; exists {
		// overwrite keeps the original insertion position
		c.entries[key] = xsrfEntry{expiresAt: expiresAt, seq: existing.seq}
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.order = append(c.order, orderSlot{key: key, seq: c.seq})
	c.entries[key] = xsrfEntry{expiresAt: expiresAt, seq: c.seq}
}

// Has reports whether key is present and not expired. It never mutates the store.
func (c *XsrfCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.expiresAt.After(c.now())
}

// Get returns key if it is live, or "" otherwise. An expired entry found
// during lookup is deleted as a side effect.
func (c *XsrfCache) Get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && e.expiresAt.After(c.now()) {
		return key
	}
	if ok {
		delete(c.entries, key)
		c.stale++
		c.maybeCompact()
	}
	return ""
}

// Delete removes key unconditionally and reports whether it existed.
func (c *XsrfCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.stale++
		c.maybeCompact()
	}
	return ok
}

// Cleanup removes every expired entry. It is intended to run periodically so
// that abandoned tokens do not accumulate between reads.
func (c *XsrfCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stale += removed
	c.maybeCompact()
	if removed > 0 {
		slog.Info("cleaned up expired XSRF tokens", "count", removed)
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *XsrfCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetDefaultLifetime adjusts the lifetime applied by Set when no explicit
// expiry is given. Entries already stored are not affected.
func (c *XsrfCache) SetDefaultLifetime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifetime = d
}

// SetMaxSize adjusts the capacity limit. A store already above the new limit
// shrinks on subsequent inserts, not immediately.
func (c *XsrfCache) SetMaxSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = n
}

// evictOldest drops the insertion-oldest key still present in the store.
// Stale slots left behind by Delete/Cleanup or recreation are skipped on the
// way. Caller must hold c.mu.
func (c *XsrfCache) evictOldest() {
	for len(c.order) > 0 {
		slot := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[slot.key]; ok && e.seq == slot.seq {
			delete(c.entries, slot.key)
			slog.Info("XSRF store full, evicted oldest token", "token", truncate(slot.key, 8))
			return
		}
		c.stale--
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// maybeCompact rebuilds the order slice once stale slots outnumber live ones,
// keeping its length proportional to the entry count so consumed tokens do
// not accumulate. Amortizes to O(1) per removal. Caller must hold c.mu.
func (c *XsrfCache) maybeCompact() {
	if c.stale*2 <= len(c.order) {
		return
	}
	kept := make([]orderSlot, 0, len(c.entries))
	for _, slot := range c.order {
		if e, ok := c.entries[slot.key]; ok && e.seq == slot.seq {
			kept = append(kept, slot)
		}
	}
	c.order = kept
	c.stale = 0
}
