package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks4":  true,
	"socks5":  true,
	"socks5h": true, // SOCKS5 with remote DNS resolution
}

// ProxyConfig holds a parsed proxy endpoint.
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
	IsSOCKS  bool
}

// ParseProxyURL validates and parses a proxy URL string.
// A schemeless input defaults to http://. Default ports are filled in per
// scheme (8080 for http, 8443 for https, 1080 for SOCKS).
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	if proxyURL == "" {
		return nil, fmt.Errorf("proxy URL is empty")
	}
	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, fmt.Errorf("unsupported proxy scheme %q, supported: http, https, socks4, socks5, socks5h", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("proxy URL missing host")
	}
	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	cfg := &ProxyConfig{
		URL:     parsed,
		Scheme:  scheme,
		Host:    host,
		Port:    port,
		IsSOCKS: strings.HasPrefix(scheme, "socks"),
	}
	if parsed.User != nil {
		cfg.Username = parsed.User.Username()
		cfg.Password, _ = parsed.User.Password()
	}
	return cfg, nil
}

// Address returns host:port for the proxy endpoint.
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// SOCKSDialer wraps a golang.org/x/net/proxy dialer with timeout support,
// since SOCKS dialers do not natively honor deadlines.
type SOCKSDialer struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

// NewSOCKSDialer creates a context-aware SOCKS dialer from cfg.
func NewSOCKSDialer(cfg *ProxyConfig, timeout time.Duration) (*SOCKSDialer, error) {
	if cfg == nil || !cfg.IsSOCKS {
		return nil, fmt.Errorf("not a SOCKS proxy")
	}

	scheme := cfg.Scheme
	if scheme == "socks5h" {
		// x/net/proxy only knows "socks5"; remote DNS happens naturally
		// because we hand it hostnames, not resolved addresses.
		scheme = "socks5"
	}

	u := &url.URL{Scheme: scheme, Host: cfg.Address()}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS dialer: %w", err)
	}
	return &SOCKSDialer{dialer: d, timeout: timeout}, nil
}

// DialContext dials through the SOCKS proxy, honoring ctx and the
// configured timeout.
func (s *SOCKSDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if cd, ok := s.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	connCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := s.dialer.Dial(network, address)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case connCh <- conn:
		case <-ctx.Done():
			conn.Close()
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy dial timeout: %w", ctx.Err())
	case conn := <-connCh:
		return conn, nil
	case err := <-errCh:
		return nil, err
	}
}
