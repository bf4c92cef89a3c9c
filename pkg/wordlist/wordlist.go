// Package wordlist loads the base path lists a scan expands. Sources are
// plain-text files (one path per line, # comments), JSON files (either a
// bare array of strings or an object with a "paths" array), or the built-in
// list when nothing else is available. All entries pass through
// target.ValidatePath before use.
package wordlist

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/panelfind/panelfind/pkg/target"
)

// jsonFile is the object form of a JSON wordlist.
type jsonFile struct {
	Paths []string `json:"paths"`
}

// Load reads a wordlist from path, dispatching on extension. A .json file is
// parsed as JSON; anything else is treated as line-oriented text. Entries
// that fail path validation are dropped with a debug log rather than
// aborting the load.
func Load(path string, logger *slog.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	var raw []string
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err = parseJSON(f)
	} else {
		raw, err = parseText(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse wordlist %s: %w", path, err)
	}
	return sanitize(raw, logger), nil
}

// parseText reads one path per line, skipping blanks and # comments.
func parseText(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// parseJSON accepts either ["a","b"] or {"paths": ["a","b"]}.
func parseJSON(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}
	var obj jsonFile
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj.Paths == nil {
		return nil, fmt.Errorf("no paths array in JSON wordlist")
	}
	return obj.Paths, nil
}

// sanitize validates and normalizes entries, dropping invalid ones and
// preserving first-seen order without duplicates.
func sanitize(raw []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		clean, err := target.ValidatePath(entry)
		if err != nil {
			logger.Debug("wordlist entry rejected", "entry", entry, "error", err)
			continue
		}
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

// Builtin returns a copy of the embedded default list.
func Builtin() []string {
	out := make([]string, len(builtin))
	copy(out, builtin)
	return out
}
