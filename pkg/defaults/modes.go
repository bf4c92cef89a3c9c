package defaults

import (
	"fmt"
	"time"

	"github.com/panelfind/panelfind/pkg/duration"
)

// Mode selects a scan profile.
type Mode string

const (
	// ModeSimple is a quick scan with minimal requests.
	ModeSimple Mode = "simple"
	// ModeAggressive is a thorough scan with maximum coverage.
	ModeAggressive Mode = "aggressive"
	// ModeStealth is a slow, careful scan to avoid detection.
	ModeStealth Mode = "stealth"
)

// ModeProfile is the effective parameter set for one scan mode.
type ModeProfile struct {
	Concurrency         int
	ConnectTimeout      time.Duration
	ReadTimeout         time.Duration
	Delay               time.Duration
	ConfidenceThreshold float64
	MaxRetries          int
	RandomUserAgents    bool
	VerifyFound         bool
	MaxPaths            int
	Description         string
}

var modeProfiles = map[Mode]ModeProfile{
	ModeSimple: {
		Concurrency:         ConcurrencySimple,
		ConnectTimeout:      duration.ConnectSimple,
		ReadTimeout:         duration.ReadSimple,
		ConfidenceThreshold: ThresholdSimple,
		MaxRetries:          1,
		MaxPaths:            MaxPathsSimple,
		Description:         "Quick scan with minimal requests",
	},
	ModeAggressive: {
		Concurrency:         ConcurrencyAggressive,
		ConnectTimeout:      duration.ConnectAggressive,
		ReadTimeout:         duration.ReadAggressive,
		ConfidenceThreshold: ThresholdAggressive,
		MaxRetries:          3,
		RandomUserAgents:    true,
		VerifyFound:         true,
		MaxPaths:            MaxPathsAggressive,
		Description:         "Thorough scan with maximum coverage",
	},
	ModeStealth: {
		Concurrency:         ConcurrencyStealth,
		ConnectTimeout:      duration.ConnectStealth,
		ReadTimeout:         duration.ReadStealth,
		Delay:               duration.StealthDelay,
		ConfidenceThreshold: ThresholdStealth,
		MaxRetries:          2,
		RandomUserAgents:    true,
		VerifyFound:         true,
		MaxPaths:            MaxPathsStealth,
		Description:         "Slow, careful scan to avoid detection",
	},
}

// Profile returns the parameter set for m.
func Profile(m Mode) (ModeProfile, error) {
	p, ok := modeProfiles[m]
	if !ok {
		return ModeProfile{}, fmt.Errorf("unknown scan mode %q", m)
	}
	return p, nil
}

// Modes lists the supported scan modes.
func Modes() []Mode {
	return []Mode{ModeSimple, ModeAggressive, ModeStealth}
}
