// Package respcache memoizes classified responses keyed by a request
// fingerprint, so verification passes and repeated candidate probes do not
// re-hit the target. Entries are write-once: the first stored outcome for a
// fingerprint wins and later stores are ignored.
package respcache

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// Entry is a cached response summary.
type Entry struct {
	StatusCode int
	BodySample string
	Headers    http.Header
	Confidence float64
	StoredAt   time.Time
}

// Cache is a bounded, TTL-evicting response cache safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[uint64]*Entry
	capacity int
	ttl      time.Duration

	hits   uint64
	misses uint64
}

// New creates a cache holding at most capacity entries, each expiring after
// ttl. Non-positive values fall back to 1000 entries and one hour.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries:  make(map[uint64]*Entry, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Fingerprint derives the cache key from the request method, URL and the
// headers that affect the response. Header order does not matter.
func Fingerprint(method, url string, headers http.Header) uint64 {
	h := murmur3.New64()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))

	if len(headers) > 0 {
		keys := make([]string, 0, len(headers))
		for k := range headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{0})
			h.Write([]byte(strings.ToLower(k)))
			h.Write([]byte{':'})
			h.Write([]byte(strings.Join(headers[k], ",")))
		}
	}
	return h.Sum64()
}

// Get returns the live entry for key, if any.
func (c *Cache) Get(key uint64) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(e.StoredAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e, true
}

// GetOrStore returns the existing live entry for key, or stores entry and
// returns it. The boolean reports whether the returned entry was already
// cached.
func (c *Cache) GetOrStore(key uint64, entry *Entry) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && time.Since(e.StoredAt) <= c.ttl {
		c.hits++
		return e, true
	}
	c.misses++

	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[key] = entry
	return entry, false
}

// evictLocked drops expired entries first; if none expired, drops the
// oldest entry to make room.
func (c *Cache) evictLocked() {
	now := time.Now()
	var oldestKey uint64
	var oldestAt time.Time
	evicted := false
	for k, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, k)
			evicted = true
			continue
		}
		if oldestAt.IsZero() || e.StoredAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.StoredAt
		}
	}
	if !evicted && !oldestAt.IsZero() {
		delete(c.entries, oldestKey)
	}
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
