// Command panelfind scans a web host for hidden administrative interfaces.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/config"
	"github.com/panelfind/panelfind/pkg/defaults"
	"github.com/panelfind/panelfind/pkg/duration"
	"github.com/panelfind/panelfind/pkg/export"
	"github.com/panelfind/panelfind/pkg/hosterrors"
	"github.com/panelfind/panelfind/pkg/httpclient"
	"github.com/panelfind/panelfind/pkg/pathgen"
	"github.com/panelfind/panelfind/pkg/proxypool"
	"github.com/panelfind/panelfind/pkg/ratelimit"
	"github.com/panelfind/panelfind/pkg/respcache"
	"github.com/panelfind/panelfind/pkg/scan"
	"github.com/panelfind/panelfind/pkg/target"
	"github.com/panelfind/panelfind/pkg/wordlist"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scan":
		os.Args = append(os.Args[:1], os.Args[2:]...)
		runScan()
	case "modes":
		printModes()
	case "version":
		fmt.Println("panelfind " + defaults.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		// Bare invocation with flags goes straight to scan.
		if strings.HasPrefix(os.Args[1], "-") {
			runScan()
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("panelfind " + defaults.Version + " - discover hidden admin panels")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  panelfind scan -u https://example.com [flags]")
	fmt.Println("  panelfind modes")
	fmt.Println("  panelfind version")
	fmt.Println()
	fmt.Println("Run 'panelfind scan -h' for scan flags.")
}

func printModes() {
	for _, m := range defaults.Modes() {
		p, _ := defaults.Profile(m)
		fmt.Printf("%-12s %s\n", m, p.Description)
		fmt.Printf("             concurrency=%d threshold=%.1f max-paths=%d verify=%v\n",
			p.Concurrency, p.ConfidenceThreshold, p.MaxPaths, p.VerifyFound)
	}
}

func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	var (
		targetURL   = fs.String("u", "", "target URL (required)")
		mode        = fs.String("mode", string(defaults.ModeSimple), "scan mode: simple, aggressive, stealth")
		wordlistArg = fs.String("w", "", "wordlist file (.txt or .json); built-in list when omitted")
		configFile  = fs.String("config", "", "YAML config file")
		proxyArg    = fs.String("proxy", "", "proxy URL (http, https, socks4, socks5)")
		proxyFile   = fs.String("proxy-file", "", "file with one proxy URL per line")
		concurrency = fs.Int("c", 0, "concurrent requests (0 = mode default)")
		threshold   = fs.Float64("threshold", 0, "confidence threshold (0 = mode default)")
		noFuzz      = fs.Bool("no-fuzz", false, "disable path mutation")
		fuzzDepth   = fs.Int("depth", 2, "fuzzing depth 1-3")
		noRateLimit = fs.Bool("no-rate-limit", false, "disable rate limiting")
		rps         = fs.Float64("rate", defaults.RateLimitDefault, "requests per second")
		noVerify    = fs.Bool("no-verify", false, "skip verification of found panels")
		insecure    = fs.Bool("k", false, "skip TLS certificate verification")
		outFormat   = fs.String("format", "json", "export format: json, csv, txt")
		outDir      = fs.String("o", "results", "output directory")
		seed        = fs.Int64("seed", 0, "seed for stealth curation and UA rotation")
		verbose     = fs.Bool("v", false, "verbose logging")
		quiet       = fs.Bool("q", false, "errors only")
	)
	fs.Parse(os.Args[1:])

	logger := newLogger(*verbose, *quiet)
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fatal(logger, "config", err)
		}
		cfg = loaded
	}
	applyFlags(cfg, fs, *targetURL, *mode, *wordlistArg, *proxyArg, *proxyFile,
		*concurrency, *threshold, *noFuzz, *fuzzDepth, *noRateLimit, *rps,
		*noVerify, *insecure, *outFormat, *outDir, *seed)

	if cfg.Target == "" {
		fmt.Fprintln(os.Stderr, "target URL is required (-u)")
		fs.Usage()
		os.Exit(2)
	}
	if err := cfg.Resolve(); err != nil {
		fatal(logger, "config", err)
	}

	dir := cfg.Output.File
	if dir == "" {
		dir = *outDir
	}
	summary, err := execute(cfg, logger, dir)
	if err != nil {
		fatal(logger, "scan", err)
	}
	printSummary(summary)
}

// applyFlags overlays explicitly-set flags onto the config.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, targetURL, mode, wl, proxy, proxyFile string,
	concurrency int, threshold float64, noFuzz bool, fuzzDepth int, noRateLimit bool, rps float64,
	noVerify, insecure bool, outFormat, outDir string, seed int64) {

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if targetURL != "" {
		cfg.Target = targetURL
	}
	if set["mode"] {
		cfg.Mode = mode
	}
	if wl != "" {
		cfg.Wordlist = wl
	}
	if proxy != "" {
		cfg.Proxies = append(cfg.Proxies, proxy)
	}
	if proxyFile != "" {
		cfg.ProxyFile = proxyFile
	}
	if set["c"] {
		cfg.Concurrency = concurrency
	}
	if set["threshold"] {
		cfg.Threshold = threshold
	}
	if noFuzz {
		cfg.Fuzzing.Enabled = false
	}
	if set["depth"] {
		cfg.Fuzzing.Depth = fuzzDepth
	}
	if noRateLimit {
		cfg.RateLimit.Enabled = false
	}
	if set["rate"] {
		cfg.RateLimit.RequestsPerSecond = rps
	}
	if noVerify {
		v := false
		cfg.Verify = &v
	}
	if set["k"] {
		cfg.Insecure = insecure
	}
	if set["format"] {
		cfg.Output.Format = outFormat
	}
	if set["o"] {
		cfg.Output.File = outDir
	}
	if set["seed"] {
		cfg.Seed = seed
	}
}

// execute wires the components and runs the scan to completion.
func execute(cfg *config.Config, logger *slog.Logger, outDir string) (*scan.Summary, error) {
	tgt, err := target.Parse(cfg.Target)
	if err != nil {
		return nil, err
	}

	base := wordlist.Builtin()
	if cfg.Wordlist != "" {
		base, err = wordlist.Load(cfg.Wordlist, logger)
		if err != nil {
			return nil, err
		}
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("wordlist is empty after validation")
	}

	clientCfg := httpclient.Config{
		Timeout:            cfg.ReadTimeout.Std(),
		DialTimeout:        cfg.ConnectTimeout.Std(),
		InsecureSkipVerify: cfg.Insecure,
		MaxIdleConns:       100,
		MaxConnsPerHost:    cfg.Concurrency,
	}
	client, err := httpclient.New(clientCfg)
	if err != nil {
		return nil, err
	}

	var pool *proxypool.Pool
	if len(cfg.Proxies) > 0 || cfg.ProxyFile != "" {
		poolCfg := proxypool.DefaultConfig()
		poolCfg.ClientConfig = clientCfg
		poolCfg.Logger = logger
		pool = proxypool.New(poolCfg)
		for _, p := range cfg.Proxies {
			if err := pool.Add(p); err != nil {
				return nil, err
			}
		}
		if cfg.ProxyFile != "" {
			n, err := pool.LoadFile(cfg.ProxyFile)
			if err != nil {
				return nil, err
			}
			logger.Info("proxies loaded", "file", cfg.ProxyFile, "count", n)
		}
	}

	limiter := ratelimit.Disabled()
	if cfg.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rlCfg.Burst = cfg.RateLimit.Burst
		rlCfg.Adaptive = cfg.RateLimit.Adaptive
		limiter = ratelimit.New(rlCfg)
	}

	var cache *respcache.Cache
	if cfg.Cache.Enabled {
		cache = respcache.New(cfg.Cache.Capacity, cfg.Cache.TTL.Std())
	}

	classifier := classify.New(classify.Config{
		Threshold: cfg.Threshold,
		Weights:   cfg.Weights,
	})

	profile := cfg.ModeProfile()
	gen := pathgen.New(pathgen.Config{
		Mode:    defaults.Mode(cfg.Mode),
		Fuzzing: cfg.Fuzzing.Enabled,
		Depth:   cfg.Fuzzing.Depth,
		Cap:     cfg.MaxPaths,
		Seed:    cfg.Seed,
	})
	total := gen.Count(base)

	var results []scan.Result
	scanner, err := scan.New(scan.Config{
		Target:           tgt,
		Mode:             defaults.Mode(cfg.Mode),
		Concurrency:      cfg.Concurrency,
		VerifyFound:      cfg.Verify != nil && *cfg.Verify,
		RandomUserAgents: profile.RandomUserAgents,
		Delay:            profile.Delay,
		MaxRetries:       profile.MaxRetries,
		Headers:          cfg.Headers,
		Seed:             cfg.Seed,
		Limiter:          limiter,
		Pool:             pool,
		Classifier:       classifier,
		Cache:            cache,
		HostErrors:       hosterrors.New(0, duration.HostErrorExpiry),
		Client:           client,
		Logger:           logger,
		Hooks: scan.Hooks{
			OnResult: func(r scan.Result) {
				results = append(results, r)
				if r.Disposition == classify.DispositionFound || r.Disposition == classify.DispositionVerified {
					fmt.Printf("[+] %s (status %d, confidence %.2f)\n", r.URL, r.StatusCode, r.Confidence)
				}
			},
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go handleInterrupts(scanner)

	summary, err := scanner.Run(ctx, gen.Generate(base), total)
	if err != nil {
		return nil, err
	}

	exp, err := export.New(outDir, logger)
	if err != nil {
		return nil, err
	}
	if _, err := exp.Write(export.Format(cfg.Output.Format), "", summary, results); err != nil {
		return nil, err
	}
	return summary, nil
}

// handleInterrupts forwards SIGINT/SIGTERM to the scanner's two-stage stop.
func handleInterrupts(scanner *scan.Scanner) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	scanner.Interrupt()
	<-sig
	scanner.Interrupt()
}

func printSummary(s *scan.Summary) {
	fmt.Println()
	fmt.Printf("Scan %s finished in %s\n", s.RunID, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("  checked:  %d/%d\n", s.Completed, s.Total)
	fmt.Printf("  found:    %d\n", s.Found)
	fmt.Printf("  verified: %d\n", s.Verified)
	fmt.Printf("  rejected: %d\n", s.Rejected)
	fmt.Printf("  errors:   %d\n", s.Errored)
	if s.Throttled > 0 {
		fmt.Printf("  throttled: %d (final rate %.1f req/s)\n", s.Throttled, s.RateStats.CurrentRate)
	}
	if s.Interrupted {
		fmt.Println("  run was interrupted; results cover the completed subset")
	}
}

func newLogger(verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fatal(logger *slog.Logger, stage string, err error) {
	logger.Error(stage+" failed", "error", err)
	os.Exit(1)
}
