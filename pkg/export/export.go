// Package export writes completed scan results to disk as JSON, CSV or
// plain text. Filenames are timestamped and sanitized; the results
// directory is created on demand.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/panelfind/panelfind/pkg/scan"
	"github.com/panelfind/panelfind/pkg/target"
)

// Format is a supported export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

// report is the JSON document shape.
type report struct {
	Summary    *scan.Summary `json:"summary"`
	Results    []scan.Result `json:"results"`
	ExportedAt time.Time     `json:"exported_at"`
}

// Exporter writes results under a base directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

// New creates an Exporter rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Exporter, error) {
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger}, nil
}

// Write exports the run in the given format, returning the file path.
// An empty basename derives one from the target host.
func (e *Exporter) Write(format Format, basename string, summary *scan.Summary, results []scan.Result) (string, error) {
	path := e.filename(basename, summary, format)

	var err error
	switch format {
	case FormatJSON:
		err = e.writeJSON(path, summary, results)
	case FormatCSV:
		err = e.writeCSV(path, results)
	case FormatTXT:
		err = e.writeTXT(path, summary, results)
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", err
	}
	e.logger.Info("results exported", "format", string(format), "file", path, "results", len(results))
	return path, nil
}

func (e *Exporter) filename(basename string, summary *scan.Summary, format Format) string {
	if basename == "" {
		basename = hostOf(summary.Target)
	}
	basename = target.SanitizeFilename(basename)
	stamp := summary.StartedAt.Format("20060102_150405")
	return filepath.Join(e.dir, fmt.Sprintf("%s_%s.%s", basename, stamp, format))
}

func (e *Exporter) writeJSON(path string, summary *scan.Summary, results []scan.Result) error {
	doc := report{Summary: summary, Results: results, ExportedAt: time.Now()}
	data, err := json.Marshal(doc, json.Deterministic(true))
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (e *Exporter) writeCSV(path string, results []scan.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"url", "path", "status", "confidence", "disposition", "title", "elapsed_ms", "proxy", "error"}); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			r.URL,
			r.Candidate.Path,
			strconv.Itoa(r.StatusCode),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			string(r.Disposition),
			r.Title,
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
			r.Proxy,
			r.Err,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeTXT(path string, summary *scan.Summary, results []scan.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Scan of %s (mode %s)\n", summary.Target, summary.Mode)
	fmt.Fprintf(&b, "Started %s, took %s\n", summary.StartedAt.Format(time.RFC3339), summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "Checked %d/%d paths: %d found, %d verified, %d rejected, %d errors\n\n",
		summary.Completed, summary.Total, summary.Found, summary.Verified, summary.Rejected, summary.Errored)

	for _, r := range results {
		fmt.Fprintf(&b, "[%s] %s (status %d, confidence %.2f)", strings.ToUpper(string(r.Disposition)), r.URL, r.StatusCode, r.Confidence)
		if r.Title != "" {
			fmt.Fprintf(&b, " title=%q", r.Title)
		}
		if r.Err != "" {
			fmt.Fprintf(&b, " error=%q", r.Err)
		}
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/:"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "scan"
	}
	return rest
}
