// Package ratelimit provides the adaptive request rate limiter for scans.
//
// Two token-bucket scopes compose: one global bucket plus one lazily created
// bucket per target host (at half the global rate). A request must clear
// both; the longer of the two waits determines the suspension time.
// Server pressure signals (HTTP 429 and friends) shrink the rate by a
// damping factor down to a floor, and a long enough streak of clean
// responses widens it again.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/panelfind/panelfind/pkg/defaults"
)

// Config holds rate limiter settings.
type Config struct {
	// Enabled gates all waiting. When false, Acquire returns immediately.
	Enabled bool

	// RequestsPerSecond is the initial global rate.
	RequestsPerSecond float64

	// Burst is the global burst allowance (saved-up tokens spendable in a
	// short spike without exceeding bucket capacity).
	Burst int

	// Adaptive enables pressure feedback and recovery.
	Adaptive bool

	// Damping multiplies the current rate on each pressure signal.
	Damping float64

	// Floor and Ceiling bound the adaptive rate.
	Floor   float64
	Ceiling float64

	// RecoveryFactor multiplies the rate after RecoveryStreak consecutive
	// non-throttled responses.
	RecoveryFactor float64
	RecoveryStreak int
}

// DefaultConfig returns the standard limiter settings (50 rps, burst 10,
// adaptive halving with a 1 rps floor).
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: defaults.RateLimitDefault,
		Burst:             defaults.RateLimitBurst,
		Adaptive:          true,
		Damping:           defaults.PressureDamping,
		Floor:             defaults.RateLimitFloor,
		Ceiling:           defaults.RateLimitCeiling,
		RecoveryFactor:    defaults.RecoveryFactor,
		RecoveryStreak:    defaults.RecoveryStreak,
	}
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	CurrentRate    float64
	PressureEvents int64
	ThrottledWaits int64
	HostBuckets    int
}

// Limiter is safe for concurrent use by scan workers.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	current float64 // current global rate, guarded by mu
	global  *rate.Limiter
	hosts   map[string]*rate.Limiter
	streak  int

	pressureEvents atomic.Int64
	throttledWaits atomic.Int64
}

// New creates a limiter from cfg, clamping nonsensical values to defaults.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RateLimitDefault
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.RateLimitBurst
	}
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = defaults.PressureDamping
	}
	if cfg.Floor <= 0 {
		cfg.Floor = defaults.RateLimitFloor
	}
	if cfg.Ceiling < cfg.RequestsPerSecond {
		cfg.Ceiling = defaults.RateLimitCeiling
	}
	if cfg.RecoveryFactor <= 1 {
		cfg.RecoveryFactor = defaults.RecoveryFactor
	}
	if cfg.RecoveryStreak <= 0 {
		cfg.RecoveryStreak = defaults.RecoveryStreak
	}

	return &Limiter{
		cfg:     cfg,
		current: cfg.RequestsPerSecond,
		global:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		hosts:   make(map[string]*rate.Limiter),
	}
}

// Disabled returns a limiter that never waits, for --no-rate-limit runs.
func Disabled() *Limiter {
	l := New(DefaultConfig())
	l.cfg.Enabled = false
	return l
}

// Acquire blocks until both the global and the per-host bucket admit one
// request, or ctx is cancelled. The two reservations are taken together and
// the longer delay wins; waits never accumulate.
func (l *Limiter) Acquire(ctx context.Context, host string) error {
	if !l.cfg.Enabled {
		return nil
	}

	l.mu.Lock()
	global := l.global
	hl := l.hostLimiterLocked(host)
	l.mu.Unlock()

	rg := global.Reserve()
	rh := hl.Reserve()

	delay := rg.Delay()
	if d := rh.Delay(); d > delay {
		delay = d
	}
	if delay == 0 {
		return nil
	}

	l.throttledWaits.Add(1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rg.Cancel()
		rh.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ReportPressure records a server throttling signal for host. The global
// rate shrinks by the damping factor (bounded below by the floor) and the
// host bucket is pinned to half of the new global rate.
func (l *Limiter) ReportPressure(host string) {
	if !l.cfg.Enabled || !l.cfg.Adaptive {
		return
	}
	l.pressureEvents.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.streak = 0
	next := l.current * l.cfg.Damping
	if next < l.cfg.Floor {
		next = l.cfg.Floor
	}
	l.current = next
	l.global.SetLimit(rate.Limit(next))

	if hl, ok := l.hosts[host]; ok {
		hostRate := next / 2
		if hostRate < l.cfg.Floor {
			hostRate = l.cfg.Floor
		}
		hl.SetLimit(rate.Limit(hostRate))
	}
}

// ReportSuccess records a non-throttled response. After RecoveryStreak
// consecutive successes the rate widens by RecoveryFactor up to the ceiling.
func (l *Limiter) ReportSuccess() {
	if !l.cfg.Enabled || !l.cfg.Adaptive {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.streak++
	if l.streak < l.cfg.RecoveryStreak {
		return
	}
	l.streak = 0

	next := l.current * l.cfg.RecoveryFactor
	if next > l.cfg.Ceiling {
		next = l.cfg.Ceiling
	}
	l.current = next
	l.global.SetLimit(rate.Limit(next))
}

// Rate returns the current global rate in requests per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Snapshot returns current limiter statistics.
func (l *Limiter) Snapshot() Stats {
	l.mu.Lock()
	current := l.current
	buckets := len(l.hosts)
	l.mu.Unlock()

	return Stats{
		CurrentRate:    current,
		PressureEvents: l.pressureEvents.Load(),
		ThrottledWaits: l.throttledWaits.Load(),
		HostBuckets:    buckets,
	}
}

// hostLimiterLocked returns the bucket for host, creating it at half the
// current global rate and half the burst. Caller holds l.mu.
func (l *Limiter) hostLimiterLocked(host string) *rate.Limiter {
	if hl, ok := l.hosts[host]; ok {
		return hl
	}
	hostRate := l.current / 2
	if hostRate < l.cfg.Floor {
		hostRate = l.cfg.Floor
	}
	burst := l.cfg.Burst / 2
	if burst < 1 {
		burst = 1
	}
	hl := rate.NewLimiter(rate.Limit(hostRate), burst)
	l.hosts[host] = hl
	return hl
}
