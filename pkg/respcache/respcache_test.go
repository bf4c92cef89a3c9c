package respcache

import (
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestFingerprintStable(t *testing.T) {
	h1 := http.Header{"Accept": {"text/html"}, "User-Agent": {"a"}}
	h2 := http.Header{"User-Agent": {"a"}, "Accept": {"text/html"}}

	a := Fingerprint(http.MethodGet, "https://example.com/admin", h1)
	b := Fingerprint(http.MethodGet, "https://example.com/admin", h2)
	if a != b {
		t.Error("header order changed the fingerprint")
	}

	if Fingerprint(http.MethodGet, "https://example.com/admin", nil) ==
		Fingerprint(http.MethodHead, "https://example.com/admin", nil) {
		t.Error("method does not affect the fingerprint")
	}
	if Fingerprint(http.MethodGet, "https://example.com/admin", nil) ==
		Fingerprint(http.MethodGet, "https://example.com/login", nil) {
		t.Error("URL does not affect the fingerprint")
	}
}

func TestGetOrStoreWriteOnce(t *testing.T) {
	c := New(10, time.Minute)
	key := Fingerprint(http.MethodGet, "https://example.com/admin", nil)

	first := &Entry{StatusCode: 200, BodySample: "one"}
	got, cached := c.GetOrStore(key, first)
	if cached {
		t.Error("first store reported as cached")
	}
	if got != first {
		t.Error("first store did not return the stored entry")
	}

	second := &Entry{StatusCode: 500, BodySample: "two"}
	got, cached = c.GetOrStore(key, second)
	if !cached {
		t.Error("second store did not report cached")
	}
	if got.BodySample != "one" {
		t.Errorf("second store replaced the entry: %q", got.BodySample)
	}
}

func TestGetMissAndHit(t *testing.T) {
	c := New(10, time.Minute)
	key := Fingerprint(http.MethodGet, "https://example.com/x", nil)

	if _, ok := c.Get(key); ok {
		t.Error("hit on empty cache")
	}
	c.GetOrStore(key, &Entry{StatusCode: 200})
	if _, ok := c.Get(key); !ok {
		t.Error("miss after store")
	}

	hits, misses := c.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("stats hits=%d misses=%d, want both nonzero", hits, misses)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	key := Fingerprint(http.MethodGet, "https://example.com/x", nil)
	c.GetOrStore(key, &Entry{StatusCode: 200})

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("entry survived TTL")
	}
}

func TestCapacityBounded(t *testing.T) {
	c := New(50, time.Minute)
	for i := 0; i < 500; i++ {
		key := Fingerprint(http.MethodGet, fmt.Sprintf("https://example.com/p%d", i), nil)
		c.GetOrStore(key, &Entry{StatusCode: 200})
	}
	if n := c.Len(); n > 50 {
		t.Errorf("cache grew to %d entries, capacity 50", n)
	}
}

func TestEvictionDropsOldest(t *testing.T) {
	c := New(2, time.Minute)
	k1 := Fingerprint(http.MethodGet, "https://example.com/1", nil)
	k2 := Fingerprint(http.MethodGet, "https://example.com/2", nil)
	k3 := Fingerprint(http.MethodGet, "https://example.com/3", nil)

	c.GetOrStore(k1, &Entry{StatusCode: 200, StoredAt: time.Now().Add(-time.Minute / 2)})
	c.GetOrStore(k2, &Entry{StatusCode: 200})
	c.GetOrStore(k3, &Entry{StatusCode: 200})

	if _, ok := c.Get(k1); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("newest entry was evicted")
	}
}
