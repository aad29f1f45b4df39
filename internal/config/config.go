// Package config holds the run configuration for pretex: which LaTeX
// processor to invoke, how many passes to allow, and where the fragment
// cache lives. Values come from an optional YAML file with CLI flags
// layered on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working
// directory when no --config flag is given.
const DefaultFile = "pretex.yaml"

// Duration wraps time.Duration with YAML support for values like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full run configuration.
type Config struct {
	// Latex is the external processor command line. The intermediate
	// document's file name is appended as the final argument.
	Latex string `yaml:"latex"`

	// MaxPasses bounds the typesetting loop per document.
	MaxPasses int `yaml:"max_passes"`

	// AuxExts are the auxiliary file extensions hashed into the
	// convergence signature.
	AuxExts []string `yaml:"aux_exts"`

	// PassTimeout bounds a single processor pass; zero disables it.
	// Timeouts apply per pass only, never mid-fragment-evaluation.
	PassTimeout Duration `yaml:"pass_timeout"`

	// Cache is the fragment-output cache database path.
	Cache string `yaml:"cache"`

	// NoCache disables the fragment-output cache entirely.
	NoCache bool `yaml:"no_cache"`

	// Deps are extra file dependencies that invalidate cached fragment
	// outputs when they change.
	Deps []string `yaml:"deps"`

	// Args are template parameters, visible to fragments as the CUE
	// list "args".
	Args []string `yaml:"args"`

	// Jobs is the number of documents compiled in parallel.
	Jobs int `yaml:"jobs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Latex:       "pdflatex -interaction=nonstopmode -file-line-error",
		MaxPasses:   5,
		AuxExts:     []string{".aux", ".toc", ".lof", ".lot", ".out", ".bbl"},
		PassTimeout: 0,
		Cache:       "pretex-cache.db",
		Jobs:        1,
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected to catch typos.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadIfExists loads path when it exists, otherwise returns defaults.
func LoadIfExists(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Latex == "" {
		return errors.New("latex command must not be empty")
	}
	if c.MaxPasses < 1 {
		return fmt.Errorf("max_passes must be at least 1, got %d", c.MaxPasses)
	}
	if c.PassTimeout < 0 {
		return errors.New("pass_timeout must not be negative")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	return nil
}
