package classify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/panelfind/panelfind/pkg/defaults"
)

// Baseline captures what the target serves for a path that cannot exist,
// so 200-with-error-page responses can be told apart from real hits.
type Baseline struct {
	StatusCode int
	BodyLen    int
	tokens     map[string]struct{}
}

// similarityThreshold is the token-overlap ratio above which a response is
// treated as the same page as the baseline.
const similarityThreshold = 0.90

// CaptureBaseline fetches a random non-existent path from the target once
// and records its response shape. A nil Baseline with a nil error means the
// target 404s properly and no soft-404 comparison is needed.
func CaptureBaseline(ctx context.Context, client *http.Client, baseURL string) (*Baseline, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("baseline path: %w", err)
	}
	probeURL := strings.TrimRight(baseURL, "/") + "/" + hex.EncodeToString(buf)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("baseline request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baseline fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(resp.Body, int64(defaults.MaxBodySample)))
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(defaults.MaxBodySample)))
	if err != nil {
		return nil, fmt.Errorf("baseline body: %w", err)
	}
	return NewBaseline(resp.StatusCode, string(body)), nil
}

// NewBaseline builds a Baseline from a known status and body.
func NewBaseline(status int, body string) *Baseline {
	return &Baseline{
		StatusCode: status,
		BodyLen:    len(body),
		tokens:     tokenize(body),
	}
}

// Matches reports whether resp is effectively the same page as the
// baseline: same status class and near-identical token content.
func (b *Baseline) Matches(resp Response) bool {
	if resp.StatusCode != b.StatusCode {
		return false
	}
	return jaccard(tokenize(resp.Body), b.tokens) >= similarityThreshold
}

// tokenize lowercases and splits on non-alphanumeric runs.
func tokenize(body string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, f := range fields {
		if len(f) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
