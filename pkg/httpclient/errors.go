package httpclient

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsConnectionError reports whether err is a connection-level failure:
// timeout, DNS failure, refused/reset connection, unreachable network.
// These are the failures that trigger proxy failover; HTTP error statuses
// are not errors at this layer at all.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	// Caller-initiated cancellation is not a connection failure.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Transport errors frequently arrive as url.Error wrapping plain strings.
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"no route to host",
		"network is unreachable",
		"i/o timeout",
		"tls handshake timeout",
		"eof",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
