// Package classify scores HTTP responses for admin-panel likelihood. Scoring
// is an ordered list of independent weighted rules, each contributing a
// bounded delta; the sum is clamped to [0,1] and compared against a
// mode-specific threshold to produce a disposition. Soft-404 detection runs
// before scoring: a response that looks like an error page, or that matches
// the target's random-path baseline, is rejected no matter its status code.
package classify

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/panelfind/panelfind/pkg/defaults"
)

// Disposition is the final classification of a probed candidate.
type Disposition string

const (
	DispositionFound    Disposition = "found"
	DispositionVerified Disposition = "verified"
	DispositionRejected Disposition = "rejected"
	DispositionError    Disposition = "error"
)

// Response carries the fields of a completed HTTP exchange that scoring
// inspects. Body is a bounded sample, not necessarily the full payload.
type Response struct {
	StatusCode    int
	Headers       http.Header
	Body          string
	FinalURL      string
	RedirectChain []string
}

// Outcome is the result of classifying one response.
type Outcome struct {
	Confidence  float64
	Disposition Disposition

	// Evidence names the rules that fired, for result summaries.
	Evidence []string
}

// Weights tunes the per-rule contributions. All values are deltas added to
// the running score; negative values penalize.
type Weights struct {
	StatusOK           float64 `yaml:"status_ok"`
	StatusProtected    float64 `yaml:"status_protected"`
	StatusRedirect     float64 `yaml:"status_redirect"`
	RedirectHint       float64 `yaml:"redirect_hint"`
	LoginForm          float64 `yaml:"login_form"`
	AdminFormBonus     float64 `yaml:"admin_form_bonus"`
	GenericLoginPen    float64 `yaml:"generic_login_penalty"`
	KeywordPerHit      float64 `yaml:"keyword_per_hit"`
	KeywordCap         float64 `yaml:"keyword_cap"`
	TitleKeyword       float64 `yaml:"title_keyword"`
	TechFingerprint    float64 `yaml:"tech_fingerprint"`
	AdminRoleHint      float64 `yaml:"admin_role_hint"`
	SecurityFeature    float64 `yaml:"security_feature"`
	SecurityFeatureCap float64 `yaml:"security_feature_cap"`
	UserFacingPenalty  float64 `yaml:"user_facing_penalty"`
}

// DefaultWeights returns the tuned default rule weights.
func DefaultWeights() Weights {
	return Weights{
		StatusOK:           0.20,
		StatusProtected:    0.30,
		StatusRedirect:     0.10,
		RedirectHint:       0.10,
		LoginForm:          0.25,
		AdminFormBonus:     0.20,
		GenericLoginPen:    -0.10,
		KeywordPerHit:      0.05,
		KeywordCap:         0.20,
		TitleKeyword:       0.15,
		TechFingerprint:    0.15,
		AdminRoleHint:      0.15,
		SecurityFeature:    0.02,
		SecurityFeatureCap: 0.10,
		UserFacingPenalty:  -0.15,
	}
}

// Config controls classification.
type Config struct {
	// Threshold is the found/rejected cut line for confidence.
	Threshold float64

	// Weights override DefaultWeights when non-zero.
	Weights Weights
}

// Classifier scores responses. It is stateless apart from the optional
// soft-404 baseline and safe for concurrent use once the baseline is set.
type Classifier struct {
	threshold float64
	weights   Weights
	rules     []rule
	baseline  *Baseline
}

// rule is one independent scoring signal. score returns the delta it
// contributes for the given response features.
type rule struct {
	name  string
	score func(f *features) float64
}

// New creates a Classifier for the given mode threshold.
func New(cfg Config) *Classifier {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = defaults.ThresholdAggressive
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	c := &Classifier{threshold: cfg.Threshold, weights: cfg.Weights}
	c.rules = c.buildRules()
	return c
}

// SetBaseline installs the soft-404 baseline captured for the target.
// Call before classification starts; the baseline is read-only afterwards.
func (c *Classifier) SetBaseline(b *Baseline) { c.baseline = b }

// Threshold reports the configured found/rejected cut line.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify scores one response. Identical inputs always yield identical
// outcomes.
func (c *Classifier) Classify(resp Response) Outcome {
	f := extractFeatures(resp)

	if reason, soft := c.isSoft404(resp, f); soft {
		return Outcome{
			Confidence:  0,
			Disposition: DispositionRejected,
			Evidence:    []string{reason},
		}
	}

	var score float64
	var evidence []string
	for _, r := range c.rules {
		if delta := r.score(f); delta != 0 {
			score += delta
			evidence = append(evidence, r.name)
		}
	}
	score = clamp01(score)

	disp := DispositionRejected
	if score >= c.threshold {
		disp = DispositionFound
	}
	return Outcome{Confidence: score, Disposition: disp, Evidence: evidence}
}

// isSoft404 reports whether the response is semantically an error page.
func (c *Classifier) isSoft404(resp Response, f *features) (string, bool) {
	if resp.StatusCode == http.StatusNotFound {
		return "status 404", true
	}
	if f.errorPage {
		return "error page content", true
	}
	if c.baseline != nil && c.baseline.Matches(resp) {
		return "matches not-found baseline", true
	}
	return "", false
}

// features is the one-pass extraction the rules score against.
type features struct {
	status        int
	title         string
	bodyLower     string
	headerBlob    string
	errorPage     bool
	redirectHint  bool
	hasLoginForm  bool
	adminForm     bool
	genericLogin  bool
	keywordHits   int
	titleKeyword  bool
	techHits      int
	adminRoleHits int
	securityHits  int
	userFacing    bool
}

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	formRe     = regexp.MustCompile(`(?is)<form[^>]*>.*?</form>`)
	passwordRe = regexp.MustCompile(`(?i)type\s*=\s*["']?password`)

	adminRolePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)role\s*[=:]\s*["']?admin`),
		regexp.MustCompile(`(?i)permission\s*[=:]\s*["']?admin`),
		regexp.MustCompile(`(?i)isAdmin\s*[=:]\s*true`),
		regexp.MustCompile(`(?i)user_type\s*[=:]\s*["']?admin`),
		regexp.MustCompile(`(?i)admin_access`),
	}
)

// techFingerprints are body/header substrings tied to known admin surfaces.
var techFingerprints = []string{
	"phpmyadmin",
	"wp-admin",
	"wp-login",
	"django admin",
	"/django-admin",
	"jenkins",
	"grafana",
	"kibana",
	"cpanel",
	"plesk",
	"webmin",
	"adminer",
	"joomla! administrator",
	"typo3",
	"umbraco",
	"magento admin",
}

var securityFeatureMarkers = []string{
	"csrf",
	"x-csrf-token",
	"__requestverificationtoken",
	"captcha",
	"recaptcha",
	"two-factor",
	"otp",
}

func extractFeatures(resp Response) *features {
	f := &features{
		status:    resp.StatusCode,
		bodyLower: strings.ToLower(resp.Body),
	}
	if m := titleRe.FindStringSubmatch(resp.Body); m != nil {
		f.title = strings.ToLower(strings.TrimSpace(m[1]))
	}

	var hb strings.Builder
	for k, vs := range resp.Headers {
		hb.WriteString(strings.ToLower(k))
		hb.WriteString(":")
		hb.WriteString(strings.ToLower(strings.Join(vs, ",")))
		hb.WriteString("\n")
	}
	f.headerBlob = hb.String()

	f.errorPage = looksLikeErrorPage(f.title, f.bodyLower)

	for _, form := range formRe.FindAllString(resp.Body, -1) {
		if !passwordRe.MatchString(form) {
			continue
		}
		f.hasLoginForm = true
		lower := strings.ToLower(form)
		if containsAny(lower, defaults.AdminKeywords) {
			f.adminForm = true
		} else {
			f.genericLogin = true
		}
	}

	for _, kw := range defaults.AdminKeywords {
		if strings.Contains(f.bodyLower, kw) {
			f.keywordHits++
		}
		if f.title != "" && strings.Contains(f.title, kw) {
			f.titleKeyword = true
		}
	}
	for _, fp := range techFingerprints {
		if strings.Contains(f.bodyLower, fp) || strings.Contains(f.headerBlob, fp) {
			f.techHits++
		}
	}
	for _, re := range adminRolePatterns {
		if re.MatchString(resp.Body) {
			f.adminRoleHits++
		}
	}
	for _, marker := range securityFeatureMarkers {
		if strings.Contains(f.bodyLower, marker) || strings.Contains(f.headerBlob, marker) {
			f.securityHits++
		}
	}
	f.userFacing = containsAny(f.bodyLower, defaults.UserFacingIndicators)

	// A probe that was redirected onto an admin-looking URL is a signal of
	// its own, independent of the final page content.
	if len(resp.RedirectChain) > 0 && containsAny(strings.ToLower(resp.FinalURL), defaults.AdminKeywords) {
		f.redirectHint = true
	}

	return f
}

// looksLikeErrorPage checks title and body against the multi-language error
// vocabularies.
func looksLikeErrorPage(title, bodyLower string) bool {
	for _, phrase := range defaults.ErrorPhrases {
		if strings.Contains(bodyLower, phrase) {
			return true
		}
	}
	if title == "" {
		return false
	}
	for _, kw := range defaults.ErrorKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// buildRules assembles the ordered rule list. Order is fixed so evidence
// output is stable.
func (c *Classifier) buildRules() []rule {
	w := c.weights
	return []rule{
		{name: "status", score: func(f *features) float64 {
			switch {
			case f.status == http.StatusOK:
				return w.StatusOK
			case f.status == http.StatusUnauthorized || f.status == http.StatusForbidden:
				return w.StatusProtected
			case f.status == http.StatusMovedPermanently || f.status == http.StatusFound:
				return w.StatusRedirect
			default:
				return 0
			}
		}},
		{name: "redirect target", score: func(f *features) float64 {
			if f.redirectHint {
				return w.RedirectHint
			}
			return 0
		}},
		{name: "login form", score: func(f *features) float64 {
			if !f.hasLoginForm {
				return 0
			}
			s := w.LoginForm
			if f.adminForm {
				s += w.AdminFormBonus
			} else if f.genericLogin {
				s += w.GenericLoginPen
			}
			return s
		}},
		{name: "title keyword", score: func(f *features) float64 {
			if f.titleKeyword {
				return w.TitleKeyword
			}
			return 0
		}},
		{name: "body keywords", score: func(f *features) float64 {
			s := float64(f.keywordHits) * w.KeywordPerHit
			if s > w.KeywordCap {
				s = w.KeywordCap
			}
			return s
		}},
		{name: "tech fingerprint", score: func(f *features) float64 {
			if f.techHits > 0 {
				return w.TechFingerprint
			}
			return 0
		}},
		{name: "admin role hint", score: func(f *features) float64 {
			if f.adminRoleHits > 0 {
				return w.AdminRoleHint
			}
			return 0
		}},
		{name: "security features", score: func(f *features) float64 {
			s := float64(f.securityHits) * w.SecurityFeature
			if s > w.SecurityFeatureCap {
				s = w.SecurityFeatureCap
			}
			return s
		}},
		{name: "user-facing content", score: func(f *features) float64 {
			if f.userFacing {
				return w.UserFacingPenalty
			}
			return 0
		}},
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
