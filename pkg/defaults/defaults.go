// Package defaults provides canonical default values for the entire codebase.
// This is the single source of truth for runtime configuration defaults:
// scan mode parameters, scoring thresholds, and keyword sets.
//
// Usage:
//
//	cfg.Concurrency = defaults.ConcurrencyAggressive
//	if resp.StatusCode == defaults.StatusTooManyRequests {
//
// Do not hardcode values like `Concurrency: 100` elsewhere; reference the
// appropriate constant from this package.
package defaults

// Version is the current panelfind version.
const Version = "1.2.0"

// HTTP status codes the scanner cares about. Aliased here so scoring rules
// and tests read uniformly without importing net/http for a handful of ints.
const (
	StatusOK                  = 200
	StatusMovedPermanently    = 301
	StatusFound               = 302
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusNotFound            = 404
	StatusTooManyRequests     = 429
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

// ============================================================================
// CONCURRENCY
// ============================================================================

const (
	// ConcurrencySimple is the worker count for simple mode (50)
	ConcurrencySimple = 50

	// ConcurrencyAggressive is the worker count for aggressive mode (100)
	ConcurrencyAggressive = 100

	// ConcurrencyStealth is the worker count for stealth mode (10)
	ConcurrencyStealth = 10

	// ConcurrencyMax is the hard upper bound on configured workers (500)
	ConcurrencyMax = 500
)

// ============================================================================
// PATH CAPS
// ============================================================================

const (
	// MaxPathsSimple limits simple mode to the first N base entries (1000)
	MaxPathsSimple = 1000

	// MaxPathsStealth limits stealth mode to N curated entries (500)
	MaxPathsStealth = 500

	// MaxPathsAggressive is the default candidate hard cap in aggressive mode (10000)
	MaxPathsAggressive = 10000

	// StealthPriorityPaths is how many keyword-prioritized entries stealth
	// mode keeps before padding with a seeded random sample (300)
	StealthPriorityPaths = 300

	// MaxVariationsPerPath bounds fuzzing expansion of a single entry (50)
	MaxVariationsPerPath = 50
)

// ============================================================================
// RATE LIMITING
// ============================================================================

const (
	// RateLimitDefault is the default global request rate (50 rps)
	RateLimitDefault = 50

	// RateLimitBurst is the default burst allowance (10)
	RateLimitBurst = 10

	// RateLimitFloor is the lowest rate pressure feedback can reach (1 rps)
	RateLimitFloor = 1

	// RateLimitCeiling is the highest rate recovery can reach (1000 rps)
	RateLimitCeiling = 1000

	// PressureDamping multiplies the current rate on a throttle signal (0.5)
	PressureDamping = 0.5

	// RecoveryFactor multiplies the current rate after a clean streak (1.1)
	RecoveryFactor = 1.1

	// RecoveryStreak is the consecutive non-throttled responses required
	// before the rate widens again (50)
	RecoveryStreak = 50
)

// ============================================================================
// PROXY HEALTH
// ============================================================================

const (
	// ProxyDegradeThreshold is consecutive failures before healthy -> degraded (3)
	ProxyDegradeThreshold = 3

	// ProxyQuarantineThreshold is consecutive failures before degraded -> quarantined (5)
	ProxyQuarantineThreshold = 5
)

// ============================================================================
// CONFIDENCE THRESHOLDS
// ============================================================================

const (
	// ThresholdSimple is the found/rejected cutoff in simple mode (0.5)
	ThresholdSimple = 0.5

	// ThresholdAggressive is the cutoff in aggressive mode (0.6)
	ThresholdAggressive = 0.6

	// ThresholdStealth is the cutoff in stealth mode (0.7)
	ThresholdStealth = 0.7
)

// ============================================================================
// INPUT LIMITS
// ============================================================================

const (
	// MaxURLLength caps target URLs (2048)
	MaxURLLength = 2048

	// MaxPathLength caps candidate paths (2000)
	MaxPathLength = 2000

	// MaxFilenameLength caps sanitized export filenames (255)
	MaxFilenameLength = 255

	// MaxRedirects bounds the redirect chain the orchestrator follows (5)
	MaxRedirects = 5

	// MaxBodySample is how much of a response body is read for scoring (256KB)
	MaxBodySample = 256 * 1024
)

// ============================================================================
// RESPONSE CACHE
// ============================================================================

const (
	// CacheCapacityDefault bounds the response cache entry count (1000)
	CacheCapacityDefault = 1000

	// CacheCapacityMax is the largest configurable cache (100000)
	CacheCapacityMax = 100000
)

// AdminKeywords are terms whose presence in a title or body indicates an
// administrative page. Matching is case-insensitive.
var AdminKeywords = []string{
	"admin", "administrator", "admincp", "adm", "moderator",
	"dashboard", "control panel", "cp", "panel", "login",
	"manager", "cms", "backend", "webmaster", "sysadmin",
	"console", "portal", "manage", "backoffice", "staff",
}

// PriorityPathKeywords mark wordlist entries worth probing first when a mode
// truncates the list.
var PriorityPathKeywords = []string{
	"admin", "administrator", "dashboard", "panel", "control",
	"login", "cp", "manage", "backend", "webmaster",
}

// ErrorKeywords flag error pages across languages. Used by soft-404
// detection alongside the baseline body comparison.
var ErrorKeywords = []string{
	"404", "not found", "error", "page not found", "doesn't exist",
	"page does not exist", "cannot be found", "access denied", "forbidden",
	"no encontrada", "não encontrada", "nie znaleziono", "не найдено",
	"找不到", "存在しません", "صفحة غير موجودة",
}

// ErrorPhrases are longer error-page sentences checked after ErrorKeywords.
var ErrorPhrases = []string{
	"page cannot be found", "page you requested could not be found",
	"page you are looking for does not exist", "404 error",
	"page doesn't exist", "resource cannot be found",
	"site you were looking for doesn't exist",
	"file or directory not found", "requested url was not found",
}

// UserFacingIndicators suggest a public storefront/blog page rather than an
// admin interface; they apply a scoring penalty.
var UserFacingIndicators = []string{
	"shopping cart", "add to cart", "checkout", "product", "category",
	"blog post", "comment", "article", "news", "contact us", "about us",
	"privacy policy", "terms of service", "faq", "help center",
}

// FuzzingExtensions are appended to candidates at fuzz depth >= 2.
// The generator narrows this list at lower depths.
var FuzzingExtensions = []string{
	".php", ".asp", ".aspx", ".jsp", ".cfm",
	".html", ".htm", ".shtml", ".py", ".rb",
}

// BackupExtensions are appended to candidates at fuzz depth 3.
var BackupExtensions = []string{
	".bak", ".old", ".backup", ".orig", ".save",
	".tmp", ".temp", ".swp", "~", ".copy",
}

// ForbiddenPathSequences abort path validation outright, raw or
// percent-decoded.
var ForbiddenPathSequences = []string{
	"..", "\x00", "\n", "\r", "%00", "%0a", "%0d",
}

// UserAgents rotate on outgoing requests when the mode randomizes them.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.6422.60 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.6422.60 Safari/537.36",
}
