// Package config loads run configuration from YAML and resolves it against
// the mode profiles. Flags override file values override mode defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/panelfind/panelfind/pkg/classify"
	"github.com/panelfind/panelfind/pkg/defaults"
	"github.com/panelfind/panelfind/pkg/duration"
)

// Duration unmarshals from YAML strings like "30m" or "5s". Bare numbers
// are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n float64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(n * float64(time.Second)))
	return nil
}

// RateLimit configures the token buckets.
type RateLimit struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Adaptive          bool    `yaml:"adaptive"`
}

// Fuzzing configures path mutation.
type Fuzzing struct {
	Enabled bool `yaml:"enabled"`
	Depth   int  `yaml:"depth"`
}

// Cache configures the response cache.
type Cache struct {
	Enabled  bool     `yaml:"enabled"`
	Capacity int      `yaml:"capacity"`
	TTL      Duration `yaml:"ttl"`
}

// Output configures result export.
type Output struct {
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the full run configuration.
type Config struct {
	Target   string `yaml:"target"`
	Mode     string `yaml:"mode"`
	Wordlist string `yaml:"wordlist"`

	Proxies   []string `yaml:"proxies"`
	ProxyFile string   `yaml:"proxy_file"`

	Concurrency int     `yaml:"concurrency"`
	Threshold   float64 `yaml:"threshold"`
	MaxPaths    int     `yaml:"max_paths"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	Insecure       bool     `yaml:"insecure"`

	Headers map[string]string `yaml:"headers"`

	RateLimit RateLimit        `yaml:"rate_limit"`
	Fuzzing   Fuzzing          `yaml:"fuzzing"`
	Cache     Cache            `yaml:"cache"`
	Output    Output           `yaml:"output"`
	Weights   classify.Weights `yaml:"weights"`

	Verify *bool `yaml:"verify"`
	Seed   int64 `yaml:"seed"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Mode: string(defaults.ModeSimple),
		RateLimit: RateLimit{
			Enabled:           true,
			RequestsPerSecond: defaults.RateLimitDefault,
			Burst:             defaults.RateLimitBurst,
			Adaptive:          true,
		},
		Fuzzing: Fuzzing{Enabled: true, Depth: 2},
		Cache: Cache{
			Enabled:  true,
			Capacity: defaults.CacheCapacityDefault,
			TTL:      Duration(duration.CacheEntryTTL),
		},
		Output: Output{Format: "json"},
	}
}

// Load reads and resolves a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve validates the configuration and fills unset fields from the mode
// profile. It must run before the config is handed to the scanner.
func (c *Config) Resolve() error {
	profile, err := defaults.Profile(defaults.Mode(c.Mode))
	if err != nil {
		return err
	}

	if c.Concurrency <= 0 {
		c.Concurrency = profile.Concurrency
	}
	if c.Concurrency > defaults.ConcurrencyMax {
		c.Concurrency = defaults.ConcurrencyMax
	}
	if c.Threshold <= 0 {
		c.Threshold = profile.ConfidenceThreshold
	}
	if c.Threshold > 1 {
		return fmt.Errorf("threshold %v out of range (0,1]", c.Threshold)
	}
	if c.MaxPaths <= 0 {
		c.MaxPaths = profile.MaxPaths
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = Duration(profile.ConnectTimeout)
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = Duration(profile.ReadTimeout)
	}
	if c.Fuzzing.Depth < 1 || c.Fuzzing.Depth > 3 {
		if c.Fuzzing.Depth != 0 {
			return fmt.Errorf("fuzzing depth %d out of range 1..3", c.Fuzzing.Depth)
		}
		c.Fuzzing.Depth = 2
	}
	if c.Verify == nil {
		v := profile.VerifyFound
		c.Verify = &v
	}
	switch c.Output.Format {
	case "", "json", "csv", "txt":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

// ModeProfile returns the resolved mode's profile.
func (c *Config) ModeProfile() defaults.ModeProfile {
	profile, _ := defaults.Profile(defaults.Mode(c.Mode))
	return profile
}
