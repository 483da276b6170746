// Package doccache provides a content-addressed cache for extracted
// document pages.
//
// The cache keys entries by a digest of the raw file bytes, so a renamed
// but byte-identical upload hits the same entry. Entries expire lazily
// after a TTL; Sweep purges expired entries eagerly.
//
// Example usage:
//
//	cache := doccache.New(time.Hour)
//	key := doccache.Key(rawBytes)
//	cache.Put(key, pages)
//	pages, ok := cache.Get(key)
package doccache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Page is one extracted page of a source document.
type Page struct {
	// Text is the extracted plain text.
	Text string

	// Number is the 1-based page number.
	Number int

	// Filename is the source file the page came from.
	Filename string
}

// Key computes the content-addressed cache key for raw file bytes.
// The filename never participates, so renamed-but-identical files map
// to the same key.
func Key(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type entry struct {
	pages    []Page
	storedAt time.Time
}

// Cache is a thread-safe content-addressed cache with TTL expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// New creates a cache whose entries expire after ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Put stores pages under the given content key, overwriting any prior
// entry and resetting its timestamp.
func (c *Cache) Put(key string, pages []Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{pages: pages, storedAt: timeNow()}
}

// Get returns the pages stored under key. An entry older than the TTL is
// treated as absent; eager removal is left to Sweep.
func (c *Cache) Get(key string) ([]Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || timeNow().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.pages, true
}

// Sweep removes all expired entries and returns how many were purged.
// Maintenance only; Get correctness never depends on it running.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := timeNow()
	purged := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			purged++
		}
	}
	return purged
}

// Reset discards all entries.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
