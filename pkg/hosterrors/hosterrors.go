// Package hosterrors tracks consecutive connection failures per host so the
// orchestrator can stop dialing a target that is plainly down. Without this,
// a dead host turns a ten-thousand-candidate scan into ten thousand connect
// timeouts.
package hosterrors

import (
	"sync"
	"time"

	"github.com/panelfind/panelfind/pkg/duration"
)

// DefaultThreshold is the consecutive connection failures after which a host
// is short-circuited.
const DefaultThreshold = 5

type hostState struct {
	failures  int
	trippedAt time.Time
}

// Tracker is a thread-safe consecutive-failure counter per host.
type Tracker struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	threshold int
	expiry    time.Duration
}

// New creates a tracker. threshold <= 0 uses DefaultThreshold; expiry <= 0
// uses duration.HostErrorExpiry.
func New(threshold int, expiry time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if expiry <= 0 {
		expiry = duration.HostErrorExpiry
	}
	return &Tracker{
		hosts:     make(map[string]*hostState),
		threshold: threshold,
		expiry:    expiry,
	}
}

// RecordFailure counts one connection-level failure for host. Returns true
// once the host crosses the threshold.
func (t *Tracker) RecordFailure(host string) bool {
	if host == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.hosts[host]
	if !ok {
		st = &hostState{}
		t.hosts[host] = st
	}
	if !st.trippedAt.IsZero() && time.Since(st.trippedAt) > t.expiry {
		st.failures = 0
		st.trippedAt = time.Time{}
	}

	st.failures++
	if st.failures >= t.threshold {
		if st.trippedAt.IsZero() {
			st.trippedAt = time.Now()
		}
		return true
	}
	return false
}

// RecordSuccess resets the failure streak for host.
func (t *Tracker) RecordSuccess(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hosts, host)
}

// ShouldSkip reports whether host has crossed the threshold and its trip has
// not yet expired.
func (t *Tracker) ShouldSkip(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.hosts[host]
	if !ok || st.failures < t.threshold {
		return false
	}
	if time.Since(st.trippedAt) > t.expiry {
		delete(t.hosts, host)
		return false
	}
	return true
}
