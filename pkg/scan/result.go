package scan

import (
	"time"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/pathgen"
	"github.com/panelfind/panelfind/pkg/proxypool"
	"github.com/panelfind/panelfind/pkg/ratelimit"
)

// State is the run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStoppingGraceful
	StateStoppingForced
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStoppingGraceful:
		return "stopping"
	case StateStoppingForced:
		return "aborting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result is one completed candidate probe. Immutable once emitted.
type Result struct {
	Candidate   pathgen.Candidate    `json:"candidate"`
	URL         string               `json:"url"`
	FinalURL    string               `json:"final_url,omitempty"`
	StatusCode  int                  `json:"status_code,omitempty"`
	Elapsed     time.Duration        `json:"elapsed"`
	Confidence  float64              `json:"confidence"`
	Disposition classify.Disposition `json:"disposition"`
	Evidence    []string             `json:"evidence,omitempty"`
	Title       string               `json:"title,omitempty"`
	Proxy       string               `json:"proxy,omitempty"`
	Err         string               `json:"error,omitempty"`
	FromCache   bool                 `json:"from_cache,omitempty"`
}

// Summary is the final run report handed to export and UI collaborators.
type Summary struct {
	RunID     string        `json:"run_id"`
	Target    string        `json:"target"`
	Mode      string        `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Total     int `json:"total"`
	Completed int `json:"completed"`

	Found     int `json:"found"`
	Verified  int `json:"verified"`
	Rejected  int `json:"rejected"`
	Errored   int `json:"errored"`
	Throttled int `json:"throttled"`

	Interrupted bool `json:"interrupted,omitempty"`

	CacheHits   uint64 `json:"cache_hits,omitempty"`
	CacheMisses uint64 `json:"cache_misses,omitempty"`

	ProxyStats []proxypool.Stats `json:"proxy_stats,omitempty"`
	RateStats  ratelimit.Stats   `json:"rate_stats"`
}

// Hooks lets UI and logging collaborators observe the run without coupling
// the scanner to any rendering layer. All fields are optional. OnResult and
// OnProgress are invoked from the aggregator goroutine, never concurrently
// with themselves. OnProxyHealthChange is forwarded to the proxy pool and
// fires from whichever worker observed the transition.
type Hooks struct {
	OnResult            func(Result)
	OnProgress          func(completed, total int)
	OnProxyHealthChange func(proxypool.Stats)
}
