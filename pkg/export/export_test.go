package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/pathgen"
	"github.com/panelfind/panelfind/pkg/scan"
)

func testRun() (*scan.Summary, []scan.Result) {
	summary := &scan.Summary{
		RunID:     "test-run",
		Target:    "https://example.com",
		Mode:      "simple",
		StartedAt: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Elapsed:   42 * time.Second,
		Total:     3,
		Completed: 3,
		Found:     1,
		Rejected:  2,
	}
	results := []scan.Result{
		{
			Candidate:   pathgen.Candidate{Path: "admin", Origin: "admin", Mutation: pathgen.MutationBase},
			URL:         "https://example.com/admin",
			StatusCode:  200,
			Confidence:  0.85,
			Disposition: classify.DispositionFound,
			Title:       "Admin Login",
			Elapsed:     120 * time.Millisecond,
		},
		{
			Candidate:   pathgen.Candidate{Path: "login", Origin: "login", Mutation: pathgen.MutationBase},
			URL:         "https://example.com/login",
			StatusCode:  404,
			Disposition: classify.DispositionRejected,
		},
	}
	return summary, results
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	summary, results := testRun()

	path, err := e.Write(FormatJSON, "", summary, results)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("path = %q, want .json extension", path)
	}
	if !strings.HasPrefix(filepath.Base(path), "example.com_") {
		t.Errorf("path = %q, want host-derived basename", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Summary *scan.Summary `json:"summary"`
		Results []scan.Result `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if doc.Summary.RunID != "test-run" {
		t.Errorf("RunID = %q", doc.Summary.RunID)
	}
	if len(doc.Results) != 2 {
		t.Errorf("results = %d, want 2", len(doc.Results))
	}
	if doc.Results[0].Disposition != classify.DispositionFound {
		t.Errorf("first disposition = %s", doc.Results[0].Disposition)
	}
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir, nil)
	summary, results := testRun()

	path, err := e.Write(FormatCSV, "report", summary, results)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("exported CSV does not parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "url" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "https://example.com/admin" || rows[1][4] != "found" {
		t.Errorf("first row = %v", rows[1])
	}
}

func TestWriteTXT(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir, nil)
	summary, results := testRun()

	path, err := e.Write(FormatTXT, "", summary, results)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"https://example.com/admin", "FOUND", "1 found", "mode simple"} {
		if !strings.Contains(text, want) {
			t.Errorf("TXT output missing %q", want)
		}
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	e, _ := New(t.TempDir(), nil)
	summary, results := testRun()
	if _, err := e.Write(Format("xml"), "", summary, results); err == nil {
		t.Error("Write accepted unknown format")
	}
}
