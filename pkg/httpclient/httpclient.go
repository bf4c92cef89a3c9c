// Package httpclient provides the shared HTTP client factory for scan
// requests: pooled transports, fail-fast timeouts, and proxy support
// covering HTTP CONNECT and SOCKS4/5 endpoints.
//
// Clients built here never follow redirects; the orchestrator walks redirect
// chains itself so the classifier can see every hop.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/panelfind/panelfind/pkg/duration"
)

// Config holds HTTP client options.
type Config struct {
	// Timeout is the total request timeout.
	Timeout time.Duration

	// DialTimeout bounds connection establishment (fail fast on dead hosts).
	DialTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification. Scanners
	// probing admin panels on self-signed hosts need this on by default.
	InsecureSkipVerify bool

	// Proxy is an optional proxy endpoint URL. Supports http, https,
	// socks4, socks5 and socks5h schemes.
	Proxy string

	// MaxIdleConns caps idle connections across all hosts.
	MaxIdleConns int

	// MaxConnsPerHost caps connections per host; scale to worker count.
	MaxConnsPerHost int

	// DisableKeepAlives turns off connection reuse (stealth mode uses this
	// so each probe looks like an independent visitor).
	DisableKeepAlives bool
}

// DefaultConfig returns settings tuned for scanning workloads.
func DefaultConfig() Config {
	return Config{
		Timeout:            duration.ReadAggressive,
		DialTimeout:        duration.ConnectAggressive,
		InsecureSkipVerify: true,
		MaxIdleConns:       100,
		MaxConnsPerHost:    25,
	}
}

// New builds an *http.Client from cfg. A malformed proxy URL yields an
// error rather than a silent direct connection; the proxy pool relies on
// requests actually traversing the proxy it selected.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = duration.ReadAggressive
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = duration.ConnectAggressive
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 25
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     duration.IdleConn,
		DisableKeepAlives:   cfg.DisableKeepAlives,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   duration.TLSHandshake,

		DialContext: dialer.DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	if cfg.Proxy != "" {
		pc, err := ParseProxyURL(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		if pc.IsSOCKS {
			socksDialer, err := NewSOCKSDialer(pc, cfg.DialTimeout)
			if err != nil {
				return nil, err
			}
			transport.DialContext = socksDialer.DialContext
			// HTTP/2 over a SOCKS tunnel confuses some proxies; keep it at 1.1.
			transport.ForceAttemptHTTP2 = false
		} else {
			transport.Proxy = http.ProxyURL(pc.URL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// ProxyURLFromRecord is a convenience for building a proxy URL with
// credentials embedded.
func ProxyURLFromRecord(scheme, host string, user, pass string) string {
	u := &url.URL{Scheme: scheme, Host: host}
	if user != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}
