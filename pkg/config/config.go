// Package config defines the harness configuration schema and provides
// strict YAML parsing.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipelab/pipespec/pkg/policy"
)

// Config is the top-level pipespec.yaml document.
type Config struct {
	Engine        string        `yaml:"engine,omitempty"          json:"engine,omitempty"          jsonschema:"description=Pipeline engine to run scenarios against"`
	Features      []string      `yaml:"features,omitempty"        json:"features,omitempty"        jsonschema:"description=Feature files or directories"`
	Tags          string        `yaml:"tags,omitempty"            json:"tags,omitempty"            jsonschema:"description=Scenario tag filter expression"`
	Format        string        `yaml:"format,omitempty"          json:"format,omitempty"          jsonschema:"enum=pretty,enum=progress,enum=cucumber,enum=junit,description=Run output format"`
	StopOnFailure bool          `yaml:"stop_on_failure,omitempty" json:"stop_on_failure,omitempty" jsonschema:"description=Abort the run on the first failing scenario"`
	Artifacts     string        `yaml:"artifacts,omitempty"       json:"artifacts,omitempty"       jsonschema:"description=Directory for run artifacts (traces and summaries)"`
	Gate          string        `yaml:"gate,omitempty"            json:"gate,omitempty"            jsonschema:"description=Boolean expression evaluated against the run summary"`
	Timeouts      Timeouts      `yaml:"timeouts,omitempty"        json:"timeouts,omitempty"`
	Policy        policy.Policy `yaml:"policy,omitempty"          json:"policy,omitempty"`
}

// Timeouts bound the blocking pipeline operations. Values are Go duration
// strings; zero values fall back to the defaults.
type Timeouts struct {
	StateChange string `yaml:"state_change,omitempty" json:"state_change,omitempty" jsonschema:"description=Bound on pipeline state transitions (fatal on expiry)"`
	Frame       string `yaml:"frame,omitempty"        json:"frame,omitempty"        jsonschema:"description=Bound on waiting for a sink's first frame"`
	Color       string `yaml:"color,omitempty"        json:"color,omitempty"        jsonschema:"description=Bound on significant-color assertions"`
}

const (
	DefaultStateChangeTimeout = 10 * time.Second
	DefaultFrameTimeout       = 5 * time.Second
	DefaultColorTimeout       = 5 * time.Second
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine:   "sim",
		Features: []string{"features"},
		Format:   "pretty",
	}
}

// StateChangeDuration parses the state-change timeout, defaulting when
// unset or unparseable (validation reports the latter).
func (t Timeouts) StateChangeDuration() time.Duration {
	return parseOr(t.StateChange, DefaultStateChangeTimeout)
}

// FrameDuration parses the frame timeout.
func (t Timeouts) FrameDuration() time.Duration {
	return parseOr(t.Frame, DefaultFrameTimeout)
}

// ColorDuration parses the color-assertion timeout.
func (t Timeouts) ColorDuration() time.Duration {
	return parseOr(t.Color, DefaultColorTimeout)
}

func parseOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// LoadFile reads and strictly parses a configuration file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a configuration from r with strict unknown-field rejection.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists, otherwise the defaults. An
// empty path always yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine == "" {
		cfg.Engine = "sim"
	}
	if len(cfg.Features) == 0 {
		cfg.Features = []string{"features"}
	}
	if cfg.Format == "" {
		cfg.Format = "pretty"
	}
}
