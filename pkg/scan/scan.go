// Package scan coordinates a full discovery run: it pulls candidates from
// the path generator, acquires a rate-limiter token and a proxy for each,
// issues the request, classifies the response, optionally verifies hits,
// and aggregates every outcome into a single summary. A run moves through
// an explicit lifecycle (idle, running, graceful stop, forced stop, done)
// driven by a two-stage interrupt.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/defaults"
	"github.com/panelfind/panelfind/pkg/duration"
	"github.com/panelfind/panelfind/pkg/hosterrors"
	"github.com/panelfind/panelfind/pkg/httpclient"
	"github.com/panelfind/panelfind/pkg/pathgen"
	"github.com/panelfind/panelfind/pkg/proxypool"
	"github.com/panelfind/panelfind/pkg/ratelimit"
	"github.com/panelfind/panelfind/pkg/respcache"
	"github.com/panelfind/panelfind/pkg/target"
)

// ErrProxyExhausted is recorded on a result when neither a proxy nor a
// direct connection could complete the request. It never aborts the run.
var ErrProxyExhausted = errors.New("no proxy available and direct connection failed")

// Config assembles the collaborators and knobs for one run.
type Config struct {
	Target *target.Target
	Mode   defaults.Mode

	// Concurrency bounds in-flight requests; zero uses the mode profile.
	Concurrency int

	// VerifyFound re-probes every found candidate before reporting it.
	VerifyFound bool

	// RandomUserAgents rotates the User-Agent header per request.
	RandomUserAgents bool

	// Delay pauses each worker after a candidate completes. Stealth mode
	// sets this to pace requests below detection thresholds.
	Delay time.Duration

	// MaxRetries bounds failover attempts after a connection-level
	// failure. Zero uses one retry.
	MaxRetries int

	// Headers are added to every request.
	Headers map[string]string

	// Seed drives User-Agent rotation and verification jitter.
	Seed int64

	// GraceTimeout bounds how long a graceful stop waits for in-flight
	// requests. Zero uses the default grace period.
	GraceTimeout time.Duration

	Limiter    *ratelimit.Limiter
	Pool       *proxypool.Pool
	Classifier *classify.Classifier
	Cache      *respcache.Cache
	HostErrors *hosterrors.Tracker

	// Client is the direct (proxyless) HTTP client. Required.
	Client *http.Client

	Hooks  Hooks
	Logger *slog.Logger
}

// Scanner executes one run. Create a fresh Scanner per run.
type Scanner struct {
	cfg    Config
	logger *slog.Logger

	state   atomic.Int32
	results chan Result

	// internal emits worker results to the aggregator.
	internal chan Result

	// stopDispatch closes on graceful stop; force closes on forced stop and
	// aborts in-flight I/O via the run context.
	stopDispatch chan struct{}
	stopOnce     sync.Once
	force        chan struct{}
	forceOnce    sync.Once

	completed atomic.Int64
	found     atomic.Int64
	verified  atomic.Int64
	rejected  atomic.Int64
	errored   atomic.Int64
	throttled atomic.Int64

	rng   *rand.Rand
	rngMu sync.Mutex
}

// New validates the configuration and prepares a Scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Target == nil {
		return nil, errors.New("scan: target is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("scan: http client is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("scan: classifier is required")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Disabled()
	}
	if cfg.HostErrors == nil {
		cfg.HostErrors = hosterrors.New(0, 0)
	}
	if cfg.Concurrency <= 0 {
		profile, err := defaults.Profile(cfg.Mode)
		if err != nil {
			return nil, err
		}
		cfg.Concurrency = profile.Concurrency
	}
	if cfg.Concurrency > defaults.ConcurrencyMax {
		cfg.Concurrency = defaults.ConcurrencyMax
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = duration.StopGrace
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Scanner{
		cfg:          cfg,
		logger:       logger,
		results:      make(chan Result, cfg.Concurrency),
		internal:     make(chan Result, cfg.Concurrency),
		stopDispatch: make(chan struct{}),
		force:        make(chan struct{}),
		rng:          rand.New(rand.NewSource(seed)),
	}
	s.state.Store(int32(StateIdle))
	if cfg.Pool != nil && cfg.Hooks.OnProxyHealthChange != nil {
		cfg.Pool.SetOnHealthChange(cfg.Hooks.OnProxyHealthChange)
	}
	return s, nil
}

// State reports the current lifecycle state.
func (s *Scanner) State() State { return State(s.state.Load()) }

// Results streams results as they complete. The channel closes when the
// run finishes. Delivery is best-effort: a consumer that falls behind the
// buffer misses results rather than stalling the run. Hooks.OnResult is the
// lossless path. Not restartable.
func (s *Scanner) Results() <-chan Result { return s.results }

// Interrupt implements the two-stage stop. The first call stops dispatching
// new candidates and lets in-flight requests finish within the grace
// period. A second call abandons in-flight work immediately.
func (s *Scanner) Interrupt() {
	switch s.State() {
	case StateRunning:
		if s.state.CompareAndSwap(int32(StateRunning), int32(StateStoppingGraceful)) {
			s.logger.Info("graceful stop requested, finishing in-flight requests")
			s.stopOnce.Do(func() { close(s.stopDispatch) })
			return
		}
		s.Interrupt()
	case StateStoppingGraceful:
		if s.state.CompareAndSwap(int32(StateStoppingGraceful), int32(StateStoppingForced)) {
			s.logger.Warn("forced stop requested, abandoning in-flight requests")
			s.forceOnce.Do(func() { close(s.force) })
		}
	}
}

// Run executes the scan over seq, blocking until completion or forced
// stop. total is the candidate count for progress reporting (use the
// generator's Count). Run may be called once per Scanner.
func (s *Scanner) Run(ctx context.Context, seq *pathgen.Sequence, total int) (*Summary, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, errors.New("scan: run already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.force:
			cancel()
		case <-runCtx.Done():
		}
	}()

	start := time.Now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		Target:    s.cfg.Target.BaseURL,
		Mode:      string(s.cfg.Mode),
		StartedAt: start,
		Total:     total,
	}
	s.logger.Info("scan starting",
		"run_id", summary.RunID,
		"target", summary.Target,
		"mode", summary.Mode,
		"candidates", total,
		"concurrency", s.cfg.Concurrency)

	if err := s.captureBaseline(runCtx); err != nil {
		s.logger.Warn("baseline capture failed, soft-404 comparison disabled", "error", err)
	}

	if s.cfg.Pool != nil {
		go s.reinstateLoop(runCtx)
	}

	var aggDone sync.WaitGroup
	aggDone.Add(1)
	go func() {
		defer aggDone.Done()
		s.aggregate(total)
	}()

	var workers sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Concurrency)

dispatch:
	for {
		select {
		case <-s.stopDispatch:
			break dispatch
		case <-runCtx.Done():
			break dispatch
		case cand, ok := <-seq.Chan():
			if !ok {
				break dispatch
			}
			sem <- struct{}{}
			workers.Add(1)
			go func(c pathgen.Candidate) {
				defer workers.Done()
				defer func() { <-sem }()
				s.probe(runCtx, c)
				s.pace(runCtx)
			}(cand)
		}
	}
	seq.Stop()

	interrupted := s.State() != StateRunning
	s.waitWorkers(&workers)

	close(s.internal)
	aggDone.Wait()

	s.state.Store(int32(StateDone))

	summary.Elapsed = time.Since(start)
	summary.Interrupted = interrupted
	summary.Completed = int(s.completed.Load())
	summary.Found = int(s.found.Load())
	summary.Verified = int(s.verified.Load())
	summary.Rejected = int(s.rejected.Load())
	summary.Errored = int(s.errored.Load())
	summary.Throttled = int(s.throttled.Load())
	if s.cfg.Cache != nil {
		summary.CacheHits, summary.CacheMisses = s.cfg.Cache.Stats()
	}
	if s.cfg.Pool != nil {
		summary.ProxyStats = s.cfg.Pool.SnapshotStats()
	}
	summary.RateStats = s.cfg.Limiter.Snapshot()

	s.logger.Info("scan finished",
		"run_id", summary.RunID,
		"elapsed", summary.Elapsed,
		"completed", summary.Completed,
		"found", summary.Found,
		"verified", summary.Verified,
		"errored", summary.Errored)
	return summary, nil
}

// waitWorkers blocks for in-flight requests, bounded by the grace period
// when the run is stopping. Forced stop has already cancelled their
// context, so they return promptly either way.
func (s *Scanner) waitWorkers(workers *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.GraceTimeout):
		s.logger.Warn("grace period elapsed with requests still in flight")
		s.forceOnce.Do(func() { close(s.force) })
		<-done
	}
}

// aggregate is the single writer for counters, hooks and the public result
// stream. Exactly one Result per completed candidate passes through here.
func (s *Scanner) aggregate(total int) {
	defer close(s.results)
	for res := range s.internal {
		switch res.Disposition {
		case classify.DispositionFound:
			s.found.Add(1)
		case classify.DispositionVerified:
			s.verified.Add(1)
		case classify.DispositionRejected:
			s.rejected.Add(1)
		case classify.DispositionError:
			s.errored.Add(1)
		}
		completed := s.completed.Add(1)

		if s.cfg.Hooks.OnResult != nil {
			s.cfg.Hooks.OnResult(res)
		}
		if s.cfg.Hooks.OnProgress != nil {
			s.cfg.Hooks.OnProgress(int(completed), total)
		}

		// OnResult is the lossless delivery path; the public stream is
		// best-effort so an absent consumer cannot stall the aggregator.
		select {
		case s.results <- res:
		default:
		}
	}
}

// probe runs the full pipeline for one candidate and emits exactly one
// Result.
func (s *Scanner) probe(ctx context.Context, cand pathgen.Candidate) {
	url := s.cfg.Target.BaseURL + "/" + cand.Path
	res := Result{Candidate: cand, URL: url}

	if s.cfg.HostErrors.ShouldSkip(s.cfg.Target.Host) {
		res.Disposition = classify.DispositionError
		res.Err = "host skipped after repeated connection failures"
		s.emit(res)
		return
	}

	if err := s.cfg.Limiter.Acquire(ctx, s.cfg.Target.Host); err != nil {
		res.Disposition = classify.DispositionError
		res.Err = err.Error()
		s.emit(res)
		return
	}

	if s.State() == StateStoppingForced {
		res.Disposition = classify.DispositionError
		res.Err = context.Canceled.Error()
		s.emit(res)
		return
	}

	if cached, ok := s.fromCache(url); ok {
		res.StatusCode = cached.StatusCode
		res.Confidence = cached.Confidence
		res.FromCache = true
		outcome := s.cfg.Classifier.Classify(classify.Response{
			StatusCode: cached.StatusCode,
			Headers:    cached.Headers,
			Body:       cached.BodySample,
			FinalURL:   url,
		})
		res.Confidence = outcome.Confidence
		res.Disposition = outcome.Disposition
		res.Evidence = outcome.Evidence
		s.emit(res)
		return
	}

	resp, proxyURL, err := s.fetch(ctx, http.MethodGet, url)
	res.Proxy = proxyURL
	if err != nil {
		res.Disposition = classify.DispositionError
		res.Err = err.Error()
		if tripped := s.cfg.HostErrors.RecordFailure(s.cfg.Target.Host); tripped {
			s.logger.Warn("host error threshold reached, skipping remaining candidates",
				"host", s.cfg.Target.Host)
		}
		s.emit(res)
		return
	}
	s.cfg.HostErrors.RecordSuccess(s.cfg.Target.Host)

	res.StatusCode = resp.statusCode
	res.Elapsed = resp.elapsed
	res.FinalURL = resp.finalURL

	if resp.statusCode == http.StatusTooManyRequests {
		s.cfg.Limiter.ReportPressure(s.cfg.Target.Host)
		s.throttled.Add(1)
		res.Disposition = classify.DispositionRejected
		res.Evidence = []string{"throttled"}
		s.emit(res)
		return
	}
	s.cfg.Limiter.ReportSuccess()

	outcome := s.cfg.Classifier.Classify(classify.Response{
		StatusCode:    resp.statusCode,
		Headers:       resp.headers,
		Body:          resp.body,
		FinalURL:      resp.finalURL,
		RedirectChain: resp.redirects,
	})
	res.Confidence = outcome.Confidence
	res.Disposition = outcome.Disposition
	res.Evidence = outcome.Evidence
	res.Title = extractTitle(resp.body)

	s.store(url, resp, outcome.Confidence)

	if res.Disposition == classify.DispositionFound && s.cfg.VerifyFound {
		if s.verify(ctx, url) {
			res.Disposition = classify.DispositionVerified
		} else {
			res.Disposition = classify.DispositionRejected
			res.Evidence = append(res.Evidence, "verification failed")
		}
	}
	s.emit(res)
}

// response is the bounded summary of one HTTP exchange, redirect hops
// included.
type response struct {
	statusCode int
	headers    http.Header
	body       string
	finalURL   string
	redirects  []string
	elapsed    time.Duration
}

// fetch issues one request through the pool's selected proxy, failing over
// to a different route on connection-level errors up to MaxRetries times.
// The returned string is the proxy used, empty for direct.
func (s *Scanner) fetch(ctx context.Context, method, url string) (*response, string, error) {
	var (
		lastErr error
		lastRec *proxypool.Record
		avoid   *proxypool.Record
	)
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		client, rec := s.route(avoid)
		resp, err := s.do(ctx, client, method, url)
		if rec != nil {
			s.cfg.Pool.ReportOutcome(rec, err == nil, elapsedOf(resp))
		}
		if err == nil {
			return resp, recordURL(rec), nil
		}
		if !httpclient.IsConnectionError(err) || ctx.Err() != nil {
			return nil, recordURL(rec), err
		}
		lastErr, lastRec = err, rec
		avoid = rec
	}
	if lastRec == nil && (s.cfg.Pool == nil || !s.cfg.Pool.HasProxies()) {
		return nil, "", fmt.Errorf("%w: %v", ErrProxyExhausted, lastErr)
	}
	return nil, recordURL(lastRec), lastErr
}

// route picks the client for the next attempt: the pool's selection when
// proxies exist, the direct client otherwise. avoid is excluded so a
// failover retry takes a different path; when the pool hands back the same
// record anyway, the retry goes direct.
func (s *Scanner) route(avoid *proxypool.Record) (*http.Client, *proxypool.Record) {
	if s.cfg.Pool == nil || !s.cfg.Pool.HasProxies() {
		return s.cfg.Client, nil
	}
	rec, ok := s.cfg.Pool.Select()
	if !ok || rec == avoid {
		return s.cfg.Client, nil
	}
	client, err := s.cfg.Pool.Client(rec)
	if err != nil {
		s.logger.Warn("proxy client unavailable, using direct connection",
			"proxy", rec.URL, "error", err)
		return s.cfg.Client, nil
	}
	return client, rec
}

// do issues the request and reads a bounded body sample. The client does
// not follow redirects itself; do walks Location hops up to
// defaults.MaxRedirects so each hop rides the same proxy route, recording
// the chain for the classifier. A chain longer than the cap returns the
// last redirect response as-is.
func (s *Scanner) do(ctx context.Context, client *http.Client, method, url string) (*response, error) {
	var chain []string
	current := url
	start := time.Now()

	for {
		req, err := http.NewRequestWithContext(ctx, method, current, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.userAgent())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		for k, v := range s.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		if isRedirect(resp.StatusCode) && len(chain) < defaults.MaxRedirects {
			if loc, locErr := resp.Location(); locErr == nil {
				resp.Body.Close()
				chain = append(chain, current)
				current = loc.String()
				continue
			}
		}

		var body string
		if method != http.MethodHead {
			data, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(defaults.MaxBodySample)))
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				resp.Body.Close()
				return nil, readErr
			}
			body = string(data)
		}
		resp.Body.Close()
		return &response{
			statusCode: resp.StatusCode,
			headers:    resp.Header,
			body:       body,
			finalURL:   resp.Request.URL.String(),
			redirects:  chain,
			elapsed:    time.Since(start),
		}, nil
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// verify re-probes a found candidate: a HEAD first, falling back to a GET
// re-fetch when HEAD is refused, confirming the page still scores at or
// above threshold. Verification traffic obeys the rate limiter and proxy
// pool like any other request.
func (s *Scanner) verify(ctx context.Context, url string) bool {
	if err := s.cfg.Limiter.Acquire(ctx, s.cfg.Target.Host); err != nil {
		return false
	}

	head, _, err := s.fetch(ctx, http.MethodHead, url)
	if err == nil {
		switch head.statusCode {
		case http.StatusNotFound, http.StatusGone:
			return false
		case http.StatusMethodNotAllowed:
			// fall through to GET
		default:
			if head.statusCode < 500 {
				return true
			}
		}
	}

	if err := s.cfg.Limiter.Acquire(ctx, s.cfg.Target.Host); err != nil {
		return false
	}
	get, _, err := s.fetch(ctx, http.MethodGet, url)
	if err != nil {
		return false
	}
	outcome := s.cfg.Classifier.Classify(classify.Response{
		StatusCode:    get.statusCode,
		Headers:       get.headers,
		Body:          get.body,
		FinalURL:      get.finalURL,
		RedirectChain: get.redirects,
	})
	return outcome.Disposition == classify.DispositionFound
}

func (s *Scanner) fromCache(url string) (*respcache.Entry, bool) {
	if s.cfg.Cache == nil {
		return nil, false
	}
	return s.cfg.Cache.Get(respcache.Fingerprint(http.MethodGet, url, nil))
}

func (s *Scanner) store(url string, resp *response, confidence float64) {
	if s.cfg.Cache == nil {
		return
	}
	s.cfg.Cache.GetOrStore(respcache.Fingerprint(http.MethodGet, url, nil), &respcache.Entry{
		StatusCode: resp.statusCode,
		BodySample: resp.body,
		Headers:    resp.headers,
		Confidence: confidence,
	})
}

// captureBaseline probes a random path once so the classifier can reject
// 200-status error pages.
func (s *Scanner) captureBaseline(ctx context.Context) error {
	baseline, err := classify.CaptureBaseline(ctx, s.cfg.Client, s.cfg.Target.BaseURL)
	if err != nil {
		return err
	}
	if baseline != nil {
		s.logger.Debug("soft-404 baseline captured",
			"status", baseline.StatusCode, "body_len", baseline.BodyLen)
		s.cfg.Classifier.SetBaseline(baseline)
	}
	return nil
}

// reinstateLoop periodically re-probes quarantined proxies.
func (s *Scanner) reinstateLoop(ctx context.Context) {
	ticker := time.NewTicker(duration.HealthProbe)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cfg.Pool.CheckQuarantined(ctx)
		}
	}
}

// pace holds the worker slot for the configured delay, so stealth runs
// keep their request spacing even with free capacity.
func (s *Scanner) pace(ctx context.Context) {
	if s.cfg.Delay <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scanner) emit(res Result) {
	s.internal <- res
}

func (s *Scanner) userAgent() string {
	if !s.cfg.RandomUserAgents {
		return defaults.UserAgents[0]
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return defaults.UserAgents[s.rng.Intn(len(defaults.UserAgents))]
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func extractTitle(body string) string {
	if m := titleRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func recordURL(rec *proxypool.Record) string {
	if rec == nil {
		return ""
	}
	return rec.URL
}

func elapsedOf(resp *response) time.Duration {
	if resp == nil {
		return 0
	}
	return resp.elapsed
}
