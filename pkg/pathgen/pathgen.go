// Package pathgen expands a base wordlist into the candidate path sequence
// a scan probes. It composes three stages over a lazy pipeline: mode
// curation/truncation, depth-bounded mutation (case, separators,
// extensions, backup suffixes), and mandatory deduplication by normalized
// path. A hard cap bounds total emission no matter how large the wordlist.
package pathgen

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/panelfind/panelfind/pkg/defaults"
)

// MutationKind labels how a candidate was derived from its origin entry.
type MutationKind string

const (
	MutationBase      MutationKind = "base"
	MutationCase      MutationKind = "case"
	MutationSeparator MutationKind = "separator"
	MutationExtension MutationKind = "extension"
	MutationBackup    MutationKind = "backup"
)

// Candidate is one generated path plus its mutation provenance.
type Candidate struct {
	// Path is the normalized candidate path, no leading slash.
	Path string

	// Origin is the wordlist entry this candidate was derived from.
	Origin string

	// Mutation is how Path was derived from Origin.
	Mutation MutationKind

	// Depth is the fuzzing depth that produced this variant (0 for base).
	Depth int
}

// Config controls generation.
type Config struct {
	// Mode determines pre-mutation truncation and curation.
	Mode defaults.Mode

	// Fuzzing enables mutation; when false only base entries are emitted.
	Fuzzing bool

	// Depth bounds compounded mutations, clamped to 1..3.
	Depth int

	// Cap is the hard bound on emitted candidates, mutated output included.
	// Zero uses the aggressive-mode maximum.
	Cap int

	// Seed drives the stealth-mode shuffle so a given seed always yields
	// the same curated sequence.
	Seed int64

	// VariationsPerPath bounds expansion of a single entry (default 50).
	VariationsPerPath int
}

// Generator expands wordlists into candidate sequences. It is stateless
// across Generate calls; every call re-derives the same sequence for the
// same input and seed.
type Generator struct {
	cfg Config
}

// New creates a Generator, clamping config values to sane bounds.
func New(cfg Config) *Generator {
	if cfg.Depth < 1 {
		cfg.Depth = 1
	}
	if cfg.Depth > 3 {
		cfg.Depth = 3
	}
	if cfg.VariationsPerPath <= 0 {
		cfg.VariationsPerPath = defaults.MaxVariationsPerPath
	}
	if cfg.Cap <= 0 {
		cfg.Cap = defaults.MaxPathsAggressive
	}
	return &Generator{cfg: cfg}
}

// Sequence is a lazy, finite stream of candidates. It is not restartable;
// call Generator.Generate again for a fresh pass over the same inputs.
type Sequence struct {
	ch       chan Candidate
	done     chan struct{}
	stopOnce sync.Once
}

// Next returns the next candidate, or ok=false when the sequence is
// exhausted or stopped.
func (s *Sequence) Next() (Candidate, bool) {
	c, ok := <-s.ch
	return c, ok
}

// Chan exposes the underlying channel for range loops.
func (s *Sequence) Chan() <-chan Candidate { return s.ch }

// Stop abandons the sequence early and releases the producer. Safe to call
// more than once.
func (s *Sequence) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Generate curates base according to the mode, then lazily emits mutated,
// deduplicated candidates up to the configured cap.
func (g *Generator) Generate(base []string) *Sequence {
	curated := g.curate(base)

	seq := &Sequence{
		ch:   make(chan Candidate, 64),
		done: make(chan struct{}),
	}

	go func() {
		defer close(seq.ch)

		seen := make(map[string]struct{}, len(curated)*4)
		emitted := 0

		emit := func(c Candidate) bool {
			if emitted >= g.cfg.Cap {
				return false
			}
			if _, dup := seen[c.Path]; dup {
				return true // dropped silently, keep going
			}
			seen[c.Path] = struct{}{}
			select {
			case seq.ch <- c:
				emitted++
				return true
			case <-seq.done:
				return false
			}
		}

		for _, entry := range curated {
			for _, c := range g.variants(entry) {
				if !emit(c) {
					return
				}
			}
			if emitted >= g.cfg.Cap {
				return
			}
		}
	}()

	return seq
}

// Count runs a full generation pass without emitting, returning how many
// candidates Generate will produce for the same input. Used for progress
// totals; the double pass is cheap relative to the network work that
// follows.
func (g *Generator) Count(base []string) int {
	curated := g.curate(base)
	seen := make(map[string]struct{}, len(curated)*4)
	n := 0
	for _, entry := range curated {
		for _, c := range g.variants(entry) {
			if n >= g.cfg.Cap {
				return n
			}
			if _, dup := seen[c.Path]; dup {
				continue
			}
			seen[c.Path] = struct{}{}
			n++
		}
	}
	return n
}

// curate applies mode-specific truncation before any mutation.
func (g *Generator) curate(base []string) []string {
	switch g.cfg.Mode {
	case defaults.ModeSimple:
		if len(base) > defaults.MaxPathsSimple {
			return base[:defaults.MaxPathsSimple]
		}
		return base
	case defaults.ModeStealth:
		return curateStealth(base, g.cfg.Seed)
	default:
		return base
	}
}

// curateStealth keeps up to 300 admin-keyword-prioritized entries (wordlist
// order preserved) and pads with a seeded random sample of the rest, up to
// 500 entries total.
func curateStealth(base []string, seed int64) []string {
	if len(base) <= defaults.MaxPathsStealth {
		return base
	}

	var prioritized, rest []string
	for _, p := range base {
		if hasPriorityKeyword(p) {
			prioritized = append(prioritized, p)
		} else {
			rest = append(rest, p)
		}
	}
	if len(prioritized) > defaults.StealthPriorityPaths {
		prioritized = prioritized[:defaults.StealthPriorityPaths]
	}

	remaining := defaults.MaxPathsStealth - len(prioritized)
	if remaining > len(rest) {
		remaining = len(rest)
	}
	if remaining > 0 {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
		// Stable output for a given seed regardless of map ordering upstream.
		sample := rest[:remaining]
		sorted := append([]string(nil), sample...)
		sort.Strings(sorted)
		return append(prioritized, sorted...)
	}
	return prioritized
}

func hasPriorityKeyword(p string) bool {
	lower := strings.ToLower(p)
	for _, kw := range defaults.PriorityPathKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// variants expands one entry into its mutation set in deterministic order,
// bounded by VariationsPerPath. The base entry always comes first.
func (g *Generator) variants(entry string) []Candidate {
	entry = strings.Trim(entry, "/")
	if entry == "" {
		return nil
	}

	out := []Candidate{{Path: entry, Origin: entry, Mutation: MutationBase}}
	if !g.cfg.Fuzzing {
		return out
	}

	perEntry := map[string]struct{}{entry: {}}
	add := func(path string, kind MutationKind, depth int) {
		if path == "" || len(out) >= g.cfg.VariationsPerPath {
			return
		}
		if _, dup := perEntry[path]; dup {
			return
		}
		perEntry[path] = struct{}{}
		out = append(out, Candidate{Path: path, Origin: entry, Mutation: kind, Depth: depth})
	}

	// Depth 1: case and separator variants.
	for _, v := range caseVariants(entry) {
		add(v, MutationCase, 1)
	}
	for _, v := range separatorVariants(entry) {
		add(v, MutationSeparator, 1)
	}

	if g.cfg.Depth < 2 {
		return out
	}

	// Depth 2: extension variants over everything depth 1 produced.
	depth1 := make([]Candidate, len(out))
	copy(depth1, out)
	for _, c := range depth1 {
		stem := stripExtension(c.Path)
		for _, ext := range defaults.FuzzingExtensions {
			add(stem+ext, MutationExtension, 2)
		}
	}

	if g.cfg.Depth < 3 {
		return out
	}

	// Depth 3: backup suffixes over the depth 2 output.
	depth2 := make([]Candidate, len(out))
	copy(depth2, out)
	for _, c := range depth2 {
		for _, suffix := range defaults.BackupExtensions {
			add(c.Path+suffix, MutationBackup, 3)
		}
	}

	return out
}

// caseVariants yields lower, UPPER, CamelCase and Title_Case forms.
func caseVariants(p string) []string {
	return []string{
		strings.ToLower(p),
		strings.ToUpper(p),
		toCamelCase(p),
		toTitleCase(p),
	}
}

// separatorVariants swaps underscores and hyphens, plus a separator-free form.
func separatorVariants(p string) []string {
	return []string{
		strings.ReplaceAll(p, "_", "-"),
		strings.ReplaceAll(p, "-", "_"),
		strings.NewReplacer("_", "", "-", "").Replace(p),
	}
}

// toCamelCase joins hyphen/underscore-separated words with each capitalized:
// admin_panel -> AdminPanel.
func toCamelCase(p string) string {
	parts := strings.Split(strings.ReplaceAll(p, "-", "_"), "_")
	var b strings.Builder
	for _, w := range parts {
		b.WriteString(capitalize(w))
	}
	return b.String()
}

// toTitleCase capitalizes each word keeping underscores:
// admin_panel -> Admin_Panel.
func toTitleCase(p string) string {
	parts := strings.Split(strings.ReplaceAll(p, "-", "_"), "_")
	for i, w := range parts {
		parts[i] = capitalize(w)
	}
	return strings.Join(parts, "_")
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}

// stripExtension removes a trailing file extension from the last path
// segment, if any.
func stripExtension(p string) string {
	slash := strings.LastIndex(p, "/")
	dot := strings.LastIndex(p, ".")
	if dot > slash {
		return p[:dot]
	}
	return p
}
