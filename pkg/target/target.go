// Package target validates and normalizes scan inputs before anything
// touches the network: the base URL, candidate paths, and proxy endpoints.
// Validation failures here are fatal for the run; the orchestrator refuses
// to start on a target that does not pass.
package target

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/panelfind/panelfind/pkg/defaults"
)

var (
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

	// Patterns that must never appear in a target URL. Anything matching is
	// treated as an injection attempt, not a typo.
	suspiciousPatterns = []string{
		"javascript:", "data:", "vbscript:",
		"<script", "</script>",
		"onerror=", "onload=", "onclick=",
	}

	proxySchemes = map[string]bool{
		"http":    true,
		"https":   true,
		"socks4":  true,
		"socks5":  true,
		"socks5h": true,
	}
)

// Target is a validated, normalized scan target.
type Target struct {
	// BaseURL is scheme://host[:port][/path] with no trailing slash.
	BaseURL string

	// Scheme is http or https.
	Scheme string

	// Host is the hostname without port.
	Host string
}

// Parse validates raw and returns a normalized Target.
// A schemeless input gets https:// prepended before parsing.
func Parse(raw string) (*Target, error) {
	raw = filterControlChars(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("target URL cannot be empty")
	}
	if len(raw) > defaults.MaxURLLength {
		return nil, fmt.Errorf("target URL exceeds %d characters", defaults.MaxURLLength)
	}

	lower := strings.ToLower(raw)
	for _, p := range suspiciousPatterns {
		if strings.Contains(lower, p) {
			return nil, fmt.Errorf("target URL contains suspicious pattern %q", p)
		}
	}

	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q, only http and https are allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("target URL is missing a host")
	}
	if !hostnamePattern.MatchString(host) {
		return nil, fmt.Errorf("target host %q contains invalid characters", host)
	}

	normalized := u.Scheme + "://" + u.Host
	if p := strings.TrimRight(u.Path, "/"); p != "" {
		normalized += p
	}

	return &Target{
		BaseURL: normalized,
		Scheme:  u.Scheme,
		Host:    host,
	}, nil
}

// ValidatePath checks a single candidate path and returns its normalized
// form: control characters removed, backslashes flattened to slashes,
// leading slashes trimmed. Traversal sequences and embedded NUL/CR/LF are
// rejected raw and percent-decoded.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if len(path) > defaults.MaxPathLength {
		return "", fmt.Errorf("path exceeds %d characters", defaults.MaxPathLength)
	}

	path = filterControlChars(path)

	if err := checkForbidden(path); err != nil {
		return "", err
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		if err := checkForbidden(decoded); err != nil {
			return "", fmt.Errorf("path contains forbidden sequence after decoding")
		}
	}

	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", fmt.Errorf("path is empty after normalization")
	}
	return path, nil
}

// FilterPaths returns the valid, normalized subset of paths, silently
// dropping anything ValidatePath rejects. Input order is preserved.
func FilterPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if normalized, err := ValidatePath(p); err == nil {
			out = append(out, normalized)
		}
	}
	return out
}

// ValidateProxyURL verifies a proxy endpoint URL. Accepted schemes are
// http, https, socks4, socks5 and socks5h.
func ValidateProxyURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("proxy URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	if !proxySchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("unsupported proxy scheme %q, supported: http, https, socks4, socks5, socks5h", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("proxy URL is missing a host")
	}
	if !hostnamePattern.MatchString(host) {
		return fmt.Errorf("proxy host %q contains invalid characters", host)
	}
	return nil
}

// SanitizeFilename makes a string safe for use as an export filename.
func SanitizeFilename(name string) string {
	name = filterControlChars(name)
	replacer := strings.NewReplacer(
		"/", "_", `\`, "_", "<", "_", ">", "_",
		":", "_", `"`, "_", "|", "_", "?", "_", "*", "_",
	)
	name = strings.Trim(replacer.Replace(name), ". ")
	if name == "" {
		return "untitled"
	}
	if len(name) > defaults.MaxFilenameLength {
		name = name[:defaults.MaxFilenameLength]
	}
	return name
}

func checkForbidden(s string) error {
	lower := strings.ToLower(s)
	for _, f := range defaults.ForbiddenPathSequences {
		if strings.Contains(lower, f) {
			return fmt.Errorf("path contains forbidden sequence %q", f)
		}
	}
	return nil
}

// filterControlChars strips ASCII control characters except tab, newline and
// carriage return. CR/LF survive the filter so the forbidden-sequence check
// can reject them explicitly instead of silently accepting a scrubbed path.
func filterControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
