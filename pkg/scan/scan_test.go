package scan

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/defaults"
	"github.com/panelfind/panelfind/pkg/hosterrors"
	"github.com/panelfind/panelfind/pkg/httpclient"
	"github.com/panelfind/panelfind/pkg/pathgen"
	"github.com/panelfind/panelfind/pkg/proxypool"
	"github.com/panelfind/panelfind/pkg/ratelimit"
	"github.com/panelfind/panelfind/pkg/respcache"
	"github.com/panelfind/panelfind/pkg/target"
)

const adminPage = `<html><head><title>Admin Login</title></head><body>
<h1>Administrator Panel</h1>
<form action="/admin/login" method="post">
<input type="text" name="admin_user">
<input type="password" name="admin_pass">
</form></body></html>`

type testOpts struct {
	mode        defaults.Mode
	verify      bool
	limiter     *ratelimit.Limiter
	cache       *respcache.Cache
	pool        *proxypool.Pool
	concurrency int
	hooks       Hooks
}

func newTestScanner(t *testing.T, serverURL string, opts testOpts) *Scanner {
	t.Helper()

	tgt, err := target.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:     2 * time.Second,
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	mode := opts.mode
	if mode == "" {
		mode = defaults.ModeSimple
	}
	profile, err := defaults.Profile(mode)
	if err != nil {
		t.Fatal(err)
	}
	concurrency := opts.concurrency
	if concurrency == 0 {
		concurrency = 5
	}
	limiter := opts.limiter
	if limiter == nil {
		limiter = ratelimit.Disabled()
	}

	s, err := New(Config{
		Target:       tgt,
		Mode:         mode,
		Concurrency:  concurrency,
		VerifyFound:  opts.verify,
		Limiter:      limiter,
		Pool:         opts.pool,
		Classifier:   classify.New(classify.Config{Threshold: profile.ConfidenceThreshold}),
		Cache:        opts.cache,
		HostErrors:   hosterrors.New(100, time.Minute),
		Client:       client,
		Hooks:        opts.hooks,
		GraceTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func runScan(t *testing.T, s *Scanner, base []string) (*Summary, []Result) {
	t.Helper()
	g := pathgen.New(pathgen.Config{Mode: defaults.ModeSimple, Fuzzing: false})

	var mu sync.Mutex
	var results []Result
	prev := s.cfg.Hooks.OnResult
	s.cfg.Hooks.OnResult = func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		if prev != nil {
			prev(r)
		}
	}

	summary, err := s.Run(context.Background(), g.Generate(base), g.Count(base))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return summary, results
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted empty config")
	}
}

func TestSimpleModeHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin" {
			w.Write([]byte(adminPage))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{})
	summary, results := runScan(t, s, []string{"admin", "login", "wp-admin"})

	if summary.Found != 1 {
		t.Fatalf("found = %d, want 1", summary.Found)
	}
	if summary.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", summary.Rejected)
	}
	if summary.Completed != 3 {
		t.Errorf("completed = %d, want 3", summary.Completed)
	}
	for _, r := range results {
		if r.Disposition == classify.DispositionFound {
			if r.Candidate.Path != "admin" {
				t.Errorf("found path = %q, want admin", r.Candidate.Path)
			}
			if r.Confidence < 0.5 {
				t.Errorf("found confidence = %.2f, want >= 0.5", r.Confidence)
			}
		}
	}
	if s.State() != StateDone {
		t.Errorf("state = %s, want done", s.State())
	}
}

func TestVerificationUpgradesFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin" {
			w.Write([]byte(adminPage))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{verify: true})
	summary, _ := runScan(t, s, []string{"admin"})
	if summary.Verified != 1 {
		t.Errorf("verified = %d, want 1 (found %d)", summary.Verified, summary.Found)
	}
}

func TestVerificationDowngradesVanishedHit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin" {
			http.NotFound(w, r)
			return
		}
		// Baseline probe misses /admin; first /admin request hits, then the
		// page disappears before verification.
		if calls.Add(1) == 1 {
			w.Write([]byte(adminPage))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{verify: true})
	summary, _ := runScan(t, s, []string{"admin"})
	if summary.Verified != 0 {
		t.Errorf("verified = %d, want 0", summary.Verified)
	}
	if summary.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", summary.Rejected)
	}
}

func TestSoft404AllRejected(t *testing.T) {
	errorBody := `<html><head><title>Oops</title></head><body>
<p>We could not locate that content anywhere on this server, sorry about that.</p>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(errorBody))
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{})
	summary, results := runScan(t, s, []string{"admin", "login", "panel", "dashboard"})

	if summary.Found != 0 || summary.Verified != 0 {
		t.Errorf("found=%d verified=%d, want 0/0 against a soft-404 server", summary.Found, summary.Verified)
	}
	if summary.Rejected != 4 {
		t.Errorf("rejected = %d, want 4", summary.Rejected)
	}
	for _, r := range results {
		if r.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200 (soft 404)", r.StatusCode)
		}
	}
}

func TestRateLimitedHost(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1)%3 == 0 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerSecond = 500
	cfg.Burst = 50
	limiter := ratelimit.New(cfg)

	s := newTestScanner(t, srv.URL, testOpts{limiter: limiter, concurrency: 3})
	base := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	summary, _ := runScan(t, s, base)

	if summary.Completed != len(base) {
		t.Errorf("completed = %d, want %d", summary.Completed, len(base))
	}
	if summary.Throttled == 0 {
		t.Error("no throttled responses recorded")
	}
	if summary.RateStats.CurrentRate >= 500 {
		t.Errorf("rate = %v, want dampened below 500", summary.RateStats.CurrentRate)
	}
	if summary.RateStats.PressureEvents == 0 {
		t.Error("no pressure events recorded")
	}
}

func TestGracefulInterrupt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	base := make([]string, 100)
	for i := range base {
		base[i] = "path" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
	}

	var s *Scanner
	var once sync.Once
	s = newTestScanner(t, srv.URL, testOpts{
		concurrency: 2,
		hooks: Hooks{
			OnResult: func(Result) {
				once.Do(func() { s.Interrupt() })
			},
		},
	})

	summary, results := runScan(t, s, base)
	if !summary.Interrupted {
		t.Error("summary not marked interrupted")
	}
	if summary.Completed >= len(base) {
		t.Errorf("completed = %d, want fewer than %d", summary.Completed, len(base))
	}
	if summary.Completed != len(results) {
		t.Errorf("completed = %d but %d results delivered", summary.Completed, len(results))
	}
	if s.State() != StateDone {
		t.Errorf("state = %s, want done", s.State())
	}
}

func TestForcedInterruptAbandonsInflight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer close(release)

	s := newTestScanner(t, srv.URL, testOpts{concurrency: 2})
	g := pathgen.New(pathgen.Config{Mode: defaults.ModeSimple, Fuzzing: false})
	base := []string{"a", "b", "c", "d"}

	done := make(chan *Summary, 1)
	go func() {
		summary, err := s.Run(context.Background(), g.Generate(base), g.Count(base))
		if err != nil {
			t.Error(err)
		}
		done <- summary
	}()

	// Wait until the run is actually in flight before interrupting.
	for s.State() != StateRunning {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	s.Interrupt()
	s.Interrupt()

	select {
	case summary := <-done:
		if !summary.Interrupted {
			t.Error("summary not marked interrupted")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("forced interrupt did not terminate the run")
	}
}

func TestRedirectedPanelFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin":
			http.Redirect(w, r, "/admin/login", http.StatusFound)
		case "/admin/login":
			w.Write([]byte(adminPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{})
	summary, results := runScan(t, s, []string{"admin"})

	if summary.Found != 1 {
		t.Fatalf("found = %d, want 1 (redirected panel)", summary.Found)
	}
	r := results[0]
	if !strings.HasSuffix(r.FinalURL, "/admin/login") {
		t.Errorf("final URL = %q, want .../admin/login", r.FinalURL)
	}
	if r.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 from the redirect target", r.StatusCode)
	}
}

func TestRedirectChainBounded(t *testing.T) {
	var adminHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin" {
			adminHits.Add(1)
		}
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{})
	summary, results := runScan(t, s, []string{"admin"})

	if summary.Completed != 1 {
		t.Fatalf("completed = %d, want 1", summary.Completed)
	}
	if got := results[0]; got.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302 once the hop cap is hit", got.StatusCode)
	}
	if summary.Found != 0 {
		t.Errorf("found = %d, want 0 for a redirect loop", summary.Found)
	}
	if n := adminHits.Load(); n != int64(defaults.MaxRedirects)+1 {
		t.Errorf("server saw %d /admin requests, want %d", n, defaults.MaxRedirects+1)
	}
}

// deadProxyURL returns an HTTP proxy URL nothing listens on.
func deadProxyURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "http://" + addr
}

func TestProxyFailoverRetriesDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	poolCfg := proxypool.DefaultConfig()
	poolCfg.DegradeThreshold = 3
	poolCfg.QuarantineThreshold = 5
	poolCfg.ClientConfig = httpclient.Config{Timeout: time.Second, DialTimeout: 500 * time.Millisecond}
	pool := proxypool.New(poolCfg)
	if err := pool.Add(deadProxyURL(t)); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var states []string
	s := newTestScanner(t, srv.URL, testOpts{
		pool:        pool,
		concurrency: 1,
		hooks: Hooks{
			OnProxyHealthChange: func(st proxypool.Stats) {
				mu.Lock()
				states = append(states, st.State)
				mu.Unlock()
			},
		},
	})

	base := []string{"a", "b", "c", "d", "e", "f"}
	summary, results := runScan(t, s, base)

	if summary.Errored != 0 {
		t.Fatalf("errored = %d, want 0: every candidate should fail over to direct", summary.Errored)
	}
	if summary.Completed != len(base) {
		t.Errorf("completed = %d, want %d", summary.Completed, len(base))
	}
	for _, r := range results {
		if r.Proxy != "" {
			t.Errorf("result for %s carries proxy %q, want direct after failover", r.Candidate.Path, r.Proxy)
		}
	}

	stats := pool.SnapshotStats()
	if len(stats) != 1 || stats[0].Failures == 0 {
		t.Errorf("pool stats = %+v, want recorded proxy failures", stats)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != "degraded" || states[1] != "quarantined" {
		t.Errorf("health transitions = %v, want [degraded quarantined ...]", states)
	}
}

func TestDoubleInterruptRightAfterStart(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer close(release)

	s := newTestScanner(t, srv.URL, testOpts{concurrency: 2})
	g := pathgen.New(pathgen.Config{Mode: defaults.ModeSimple, Fuzzing: false})
	base := []string{"a", "b", "c", "d"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Run(context.Background(), g.Generate(base), g.Count(base)); err != nil {
			t.Error(err)
		}
	}()

	// Force as early in the run as possible; the stop must not be lost to
	// startup ordering.
	for s.State() != StateRunning {
		time.Sleep(time.Millisecond)
	}
	s.Interrupt()
	s.Interrupt()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("immediate forced interrupt did not terminate the run")
	}
	if s.State() != StateDone {
		t.Errorf("state = %s, want done", s.State())
	}
}

func TestCacheShortCircuitsRepeats(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin" {
			hits.Add(1)
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cache := respcache.New(100, time.Minute)
	s := newTestScanner(t, srv.URL, testOpts{cache: cache})
	runScan(t, s, []string{"admin"})
	first := hits.Load()

	s2 := newTestScanner(t, srv.URL, testOpts{cache: cache})
	summary, _ := runScan(t, s2, []string{"admin"})
	if hits.Load() != first {
		t.Errorf("server hit again despite cache (%d -> %d)", first, hits.Load())
	}
	if summary.CacheHits == 0 {
		t.Error("summary reports no cache hits")
	}
}

func TestResultsStreamDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, testOpts{concurrency: 1})
	g := pathgen.New(pathgen.Config{Mode: defaults.ModeSimple, Fuzzing: false})
	base := []string{"a", "b"}

	var streamed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range s.Results() {
			streamed.Add(1)
		}
	}()

	if _, err := s.Run(context.Background(), g.Generate(base), g.Count(base)); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if streamed.Load() == 0 {
		t.Error("no results delivered on the public stream")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:             "idle",
		StateRunning:          "running",
		StateStoppingGraceful: "stopping",
		StateStoppingForced:   "aborting",
		StateDone:             "done",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
