// Package proxypool manages outbound proxy endpoints for a scan: per-proxy
// health state, latency-weighted rotation, quarantine with cooldown, and
// lightweight health probes.
//
// Records are owned by the pool and mutated only through ReportOutcome and
// the health check path, always under the pool lock. Callers get snapshot
// copies, never live internal state.
package proxypool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/panelfind/panelfind/pkg/defaults"
	"github.com/panelfind/panelfind/pkg/duration"
	"github.com/panelfind/panelfind/pkg/httpclient"
	"github.com/panelfind/panelfind/pkg/target"
)

// State is a proxy health state.
type State int

const (
	// Healthy proxies are in normal rotation.
	Healthy State = iota
	// Degraded proxies are used only when no healthy proxy remains.
	Degraded
	// Quarantined proxies are excluded until cooldown plus a passing
	// health check.
	Quarantined
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Quarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// ErrNoProxyAvailable signals that every proxy is quarantined and the
// direct-connection fallback also failed. The orchestrator records it as an
// error disposition; it never aborts a run.
var ErrNoProxyAvailable = errors.New("proxypool: no proxy available")

// Record holds one proxy endpoint and its rolling stats. All mutable fields
// are guarded by the owning pool's lock.
type Record struct {
	URL      string
	Scheme   string
	Username string
	Password string

	state               State
	consecutiveFailures int
	successes           int64
	failures            int64
	avgLatency          time.Duration // EWMA
	quarantinedAt       time.Time

	// smooth weighted round-robin bookkeeping
	currentWeight int

	client *http.Client
}

// Stats is an immutable snapshot of one record, safe to hand to hooks and
// the final summary.
type Stats struct {
	URL                 string
	Scheme              string
	State               string
	Successes           int64
	Failures            int64
	ConsecutiveFailures int
	AvgLatency          time.Duration
}

// Config holds pool settings.
type Config struct {
	// DegradeThreshold is consecutive failures before healthy -> degraded.
	DegradeThreshold int

	// QuarantineThreshold is consecutive failures before degraded ->
	// quarantined.
	QuarantineThreshold int

	// Cooldown is how long a quarantined proxy sits out before a health
	// check may reinstate it.
	Cooldown time.Duration

	// ProbeURL is the health check target.
	ProbeURL string

	// ClientConfig is the base HTTP client configuration per-proxy clients
	// are derived from.
	ClientConfig httpclient.Config

	// OnHealthChange fires whenever a record transitions state. Called
	// without the pool lock held.
	OnHealthChange func(Stats)

	// Logger for state transition logging (default slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns standard pool settings.
func DefaultConfig() Config {
	return Config{
		DegradeThreshold:    defaults.ProxyDegradeThreshold,
		QuarantineThreshold: defaults.ProxyQuarantineThreshold,
		Cooldown:            duration.ProxyQuarantine,
		ProbeURL:            "https://www.example.com/",
		ClientConfig:        httpclient.DefaultConfig(),
	}
}

// Pool rotates proxies and tracks their health.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	records []*Record
	byURL   map[string]*Record

	logger *slog.Logger
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	if cfg.DegradeThreshold <= 0 {
		cfg.DegradeThreshold = defaults.ProxyDegradeThreshold
	}
	if cfg.QuarantineThreshold <= cfg.DegradeThreshold {
		cfg.QuarantineThreshold = cfg.DegradeThreshold + 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = duration.ProxyQuarantine
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:    cfg,
		byURL:  make(map[string]*Record),
		logger: logger,
	}
}

// SetOnHealthChange replaces the health-change callback. Call before the
// pool starts serving selections; the callback is read without the pool
// lock once traffic flows.
func (p *Pool) SetOnHealthChange(fn func(Stats)) {
	p.cfg.OnHealthChange = fn
}

// Add validates and registers a proxy endpoint. Duplicate URLs are ignored.
func (p *Pool) Add(proxyURL string) error {
	proxyURL = strings.TrimSpace(proxyURL)
	if err := target.ValidateProxyURL(proxyURL); err != nil {
		return err
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	rec := &Record{
		URL:    proxyURL,
		Scheme: strings.ToLower(u.Scheme),
		state:  Healthy,
	}
	if u.User != nil {
		rec.Username = u.User.Username()
		rec.Password, _ = u.User.Password()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byURL[proxyURL]; exists {
		return nil
	}
	p.records = append(p.records, rec)
	p.byURL[proxyURL] = rec
	return nil
}

// LoadFile reads one proxy URL per line, skipping blanks and # comments.
// Returns how many were added; invalid lines are logged and skipped.
func (p *Pool) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening proxy file: %w", err)
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.Add(line); err != nil {
			p.logger.Warn("skipping invalid proxy", slog.String("proxy", line), slog.String("error", err.Error()))
			continue
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("reading proxy file: %w", err)
	}
	return count, nil
}

// Select returns the next proxy to use, or ok=false for a direct
// connection (empty pool, or everything quarantined).
//
// Healthy proxies rotate by smooth weighted round-robin, weighted inversely
// by recent latency so fast proxies carry more of the load. Degraded proxies
// are used only when no healthy ones remain. Quarantined proxies whose
// cooldown has elapsed are demoted to degraded-pending-check; they re-enter
// rotation only after CheckQuarantined passes them.
func (p *Pool) Select() (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) == 0 {
		return nil, false
	}

	candidates := p.eligibleLocked(Healthy)
	if len(candidates) == 0 {
		candidates = p.eligibleLocked(Degraded)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	return smoothWeightedPick(candidates), true
}

// eligibleLocked returns records in the given state. Caller holds p.mu.
func (p *Pool) eligibleLocked(s State) []*Record {
	var out []*Record
	for _, r := range p.records {
		if r.state == s {
			out = append(out, r)
		}
	}
	return out
}

// smoothWeightedPick implements nginx-style smooth weighted round-robin.
// Weight is inverse to average latency so a 50ms proxy is picked far more
// often than a 2s one, while every candidate still gets turns.
func smoothWeightedPick(candidates []*Record) *Record {
	var best *Record
	total := 0
	for _, r := range candidates {
		w := latencyWeight(r.avgLatency)
		r.currentWeight += w
		total += w
		if best == nil || r.currentWeight > best.currentWeight {
			best = r
		}
	}
	best.currentWeight -= total
	return best
}

func latencyWeight(lat time.Duration) int {
	ms := lat.Milliseconds()
	w := int(1000 / (1 + ms))
	if w < 1 {
		w = 1
	}
	return w
}

// ReportOutcome records a request result for rec and applies health state
// transitions. Success resets the failure streak and promotes degraded
// records back to healthy; failures degrade and eventually quarantine.
func (p *Pool) ReportOutcome(rec *Record, success bool, latency time.Duration) {
	if rec == nil {
		return
	}

	var changed *Stats

	p.mu.Lock()
	if success {
		rec.successes++
		rec.consecutiveFailures = 0
		rec.avgLatency = ewma(rec.avgLatency, latency)
		if rec.state == Degraded {
			rec.state = Healthy
			changed = snapshotLocked(rec)
		}
	} else {
		rec.failures++
		rec.consecutiveFailures++
		switch {
		case rec.state == Healthy && rec.consecutiveFailures >= p.cfg.DegradeThreshold:
			rec.state = Degraded
			changed = snapshotLocked(rec)
		case rec.state == Degraded && rec.consecutiveFailures >= p.cfg.QuarantineThreshold:
			rec.state = Quarantined
			rec.quarantinedAt = time.Now()
			changed = snapshotLocked(rec)
		}
	}
	p.mu.Unlock()

	if changed != nil {
		p.logger.Info("proxy health change",
			slog.String("proxy", changed.URL),
			slog.String("state", changed.State),
			slog.Int("consecutive_failures", changed.ConsecutiveFailures))
		if p.cfg.OnHealthChange != nil {
			p.cfg.OnHealthChange(*changed)
		}
	}
}

// Quarantine forces rec into quarantine, used when a health check fails on
// a degraded proxy.
func (p *Pool) Quarantine(rec *Record) {
	var changed *Stats
	p.mu.Lock()
	if rec.state != Quarantined {
		rec.state = Quarantined
		rec.quarantinedAt = time.Now()
		changed = snapshotLocked(rec)
	}
	p.mu.Unlock()

	if changed != nil && p.cfg.OnHealthChange != nil {
		p.cfg.OnHealthChange(*changed)
	}
}

// HealthCheck issues a lightweight GET probe through rec. Reports the
// outcome to the pool like any other request and returns whether the probe
// succeeded.
func (p *Pool) HealthCheck(ctx context.Context, rec *Record) bool {
	client, err := p.Client(rec)
	if err != nil {
		p.ReportOutcome(rec, false, 0)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, duration.HealthProbe)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		p.ReportOutcome(rec, false, 0)
		return false
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.ReportOutcome(rec, false, 0)
		return false
	}
	p.ReportOutcome(rec, true, time.Since(start))
	return true
}

// CheckQuarantined health-checks every quarantined proxy whose cooldown has
// elapsed. A passing probe moves the record to degraded; a further success
// during the scan promotes it back to healthy.
func (p *Pool) CheckQuarantined(ctx context.Context) {
	p.mu.Lock()
	var due []*Record
	for _, r := range p.records {
		if r.state == Quarantined && time.Since(r.quarantinedAt) >= p.cfg.Cooldown {
			due = append(due, r)
		}
	}
	p.mu.Unlock()

	for _, rec := range due {
		if ctx.Err() != nil {
			return
		}
		if p.probeForReinstatement(ctx, rec) {
			var changed *Stats
			p.mu.Lock()
			if rec.state == Quarantined {
				rec.state = Degraded
				rec.consecutiveFailures = 0
				changed = snapshotLocked(rec)
			}
			p.mu.Unlock()
			if changed != nil {
				p.logger.Info("proxy reinstated",
					slog.String("proxy", changed.URL),
					slog.String("state", changed.State))
				if p.cfg.OnHealthChange != nil {
					p.cfg.OnHealthChange(*changed)
				}
			}
		} else {
			// Failed the probe; restart the cooldown clock.
			p.mu.Lock()
			rec.quarantinedAt = time.Now()
			p.mu.Unlock()
		}
	}
}

// probeForReinstatement is HealthCheck without the outcome reporting, so a
// failed reinstatement probe does not pile more failures onto a record that
// is already quarantined.
func (p *Pool) probeForReinstatement(ctx context.Context, rec *Record) bool {
	client, err := p.Client(rec)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, duration.HealthProbe)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

// Client returns the HTTP client routed through rec, building and caching
// it on first use.
func (p *Pool) Client(rec *Record) (*http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec.client != nil {
		return rec.client, nil
	}
	cfg := p.cfg.ClientConfig
	cfg.Proxy = rec.URL
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	rec.client = client
	return client, nil
}

// HasProxies reports whether any proxies are registered.
func (p *Pool) HasProxies() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records) > 0
}

// HealthyCount returns how many proxies are currently healthy.
func (p *Pool) HealthyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.records {
		if r.state == Healthy {
			n++
		}
	}
	return n
}

// SnapshotStats returns an immutable per-proxy stats snapshot for the final
// scan summary.
func (p *Pool) SnapshotStats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, *snapshotLocked(r))
	}
	return out
}

func snapshotLocked(r *Record) *Stats {
	return &Stats{
		URL:                 r.URL,
		Scheme:              r.Scheme,
		State:               r.state.String(),
		Successes:           r.successes,
		Failures:            r.failures,
		ConsecutiveFailures: r.consecutiveFailures,
		AvgLatency:          r.avgLatency,
	}
}

// ewma keeps a smoothed latency with alpha 0.3; a zero prior adopts the
// sample outright.
func ewma(prior, sample time.Duration) time.Duration {
	if prior == 0 {
		return sample
	}
	return time.Duration(0.7*float64(prior) + 0.3*float64(sample))
}
