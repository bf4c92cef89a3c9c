// Package duration provides canonical time constants for the entire codebase.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ConnectAggressive)
//	cfg.GraceTimeout = duration.StopGrace
//
// Do not use hardcoded time.Duration values like `5 * time.Second` anywhere;
// reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// PER-MODE HTTP TIMEOUTS
// ============================================================================

const (
	// ConnectSimple is the connect timeout in simple mode (3s)
	ConnectSimple = 3 * time.Second

	// ConnectAggressive is the connect timeout in aggressive mode (5s)
	ConnectAggressive = 5 * time.Second

	// ConnectStealth is the connect timeout in stealth mode (8s)
	ConnectStealth = 8 * time.Second

	// ReadSimple is the full-request timeout in simple mode (10s)
	ReadSimple = 10 * time.Second

	// ReadAggressive is the full-request timeout in aggressive mode (15s)
	ReadAggressive = 15 * time.Second

	// ReadStealth is the full-request timeout in stealth mode (20s)
	ReadStealth = 20 * time.Second
)

// ============================================================================
// SCAN LIFECYCLE
// ============================================================================

const (
	// StopGrace bounds how long in-flight requests may finish after a
	// graceful interrupt (10s)
	StopGrace = 10 * time.Second

	// StealthDelay is the fixed inter-request delay in stealth mode (1.5s)
	StealthDelay = 1500 * time.Millisecond

	// HealthProbe is the proxy health check timeout (10s)
	HealthProbe = 10 * time.Second

	// ProxyQuarantine is how long a quarantined proxy sits out before it may
	// re-enter rotation via a health check (5min)
	ProxyQuarantine = 5 * time.Minute

	// HostErrorExpiry is how long a host stays short-circuited after
	// exceeding its connection-failure threshold (10min)
	HostErrorExpiry = 10 * time.Minute

	// CacheEntryTTL is the default response cache entry lifetime (1h)
	CacheEntryTTL = time.Hour

	// TLSHandshake bounds TLS negotiation on all clients (10s)
	TLSHandshake = 10 * time.Second

	// IdleConn is how long pooled idle connections are kept (90s)
	IdleConn = 90 * time.Second
)
