// Package config holds the YAML configuration of the command line tools.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kshedden/bhmm/bhmm"
	"github.com/kshedden/bhmm/errors"
	"github.com/kshedden/bhmm/hmmlib"
)

// Config configures a run of the Bayesian sampler.
type Config struct {
	NState int    `yaml:"nstate"`
	Output string `yaml:"output"`
	NComp  int    `yaml:"ncomp"`

	Reversible bool `yaml:"reversible"`
	Stationary bool `yaml:"stationary"`

	// Inner chain steps per transition matrix draw, 0 for the default
	TransitionMatrixSamplingSteps int `yaml:"transition_matrix_sampling_steps"`

	P0Prior               PriorConfig `yaml:"p0_prior"`
	TransitionMatrixPrior PriorConfig `yaml:"transition_matrix_prior"`

	NBurn            int   `yaml:"nburn"`
	NThin            int   `yaml:"nthin"`
	NSamples         int   `yaml:"nsamples"`
	SaveHiddenStates bool  `yaml:"save_hidden_states"`
	Seed             int64 `yaml:"seed"`

	// Coverage of the reported posterior intervals
	Confidence float64 `yaml:"confidence"`

	// Address of the Prometheus endpoint, empty to disable it
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
}

// PriorConfig is a prior mode name, or explicit pseudo-counts.
type PriorConfig struct {
	Mode   string    `yaml:"mode"`
	Values []float64 `yaml:"values,omitempty"`
}

// UnmarshalYAML decodes a prior block as a whole, so that a block in a
// file replaces the default prior instead of being merged into it.
func (p *PriorConfig) UnmarshalYAML(value *yaml.Node) error {

	type plain PriorConfig
	var v plain
	if err := value.Decode(&v); err != nil {
		return err
	}
	*p = PriorConfig(v)

	return nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		NState:                2,
		Output:                "gaussian",
		NComp:                 1,
		Reversible:            true,
		P0Prior:               PriorConfig{Mode: "mixed"},
		TransitionMatrixPrior: PriorConfig{Mode: "mixed"},
		NThin:                 1,
		NSamples:              100,
		Seed:                  1,
		Confidence:            0.95,
		LogLevel:              "info",
	}
}

// Load loads configuration from a file.  Settings missing from the file
// keep their default values.
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse config")
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {

	if path == "" {
		return Default(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return Load(path)
}

// Save saves configuration to a file.
func (c *Config) Save(path string) error {

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "config", "Save", "create config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "config", "Save", "marshal config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "config", "Save", "write config file")
	}

	return nil
}

// Spec converts the prior to a bhmm.PriorSpec.  Values, when present, take
// precedence over the mode, which must then be empty or "explicit".
func (p PriorConfig) Spec() (bhmm.PriorSpec, error) {

	if len(p.Values) > 0 {
		if m := strings.ToLower(p.Mode); m != "" && m != "explicit" {
			return bhmm.PriorSpec{}, errors.Invalidf("config", "PriorConfig.Spec", "prior mode %q with explicit values", p.Mode)
		}
		return bhmm.ExplicitPrior(p.Values), nil
	}

	mode, err := bhmm.ParsePriorMode(p.Mode)
	if err != nil {
		return bhmm.PriorSpec{}, err
	}

	return bhmm.PriorSpec{Mode: mode}, nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {

	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.WrapInvalid(err, "config", "Level", "parse log level")
	}

	return level, nil
}

// Validate checks the settings that the sampler does not check itself.
func (c *Config) Validate() error {

	if _, err := hmmlib.ParseOutputKind(c.Output); err != nil {
		return err
	}
	if !(c.Confidence > 0 && c.Confidence < 1) {
		return errors.Invalidf("config", "Validate", "confidence must be in (0, 1), got %v", c.Confidence)
	}
	if _, err := c.P0Prior.Spec(); err != nil {
		return err
	}
	if _, err := c.TransitionMatrixPrior.Spec(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// SamplerOptions returns the sampler options for the configuration.
func (c *Config) SamplerOptions() ([]bhmm.Option, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	kind, _ := hmmlib.ParseOutputKind(c.Output)
	p0, _ := c.P0Prior.Spec()
	trans, _ := c.TransitionMatrixPrior.Spec()

	return []bhmm.Option{
		bhmm.WithOutputKind(kind),
		bhmm.WithNComp(c.NComp),
		bhmm.WithReversible(c.Reversible),
		bhmm.WithStationary(c.Stationary),
		bhmm.WithTransitionMatrixSamplingSteps(c.TransitionMatrixSamplingSteps),
		bhmm.WithP0Prior(p0),
		bhmm.WithTransitionMatrixPrior(trans),
		bhmm.WithNBurn(c.NBurn),
		bhmm.WithNThin(c.NThin),
		bhmm.WithNSamples(c.NSamples),
		bhmm.WithSaveHiddenStates(c.SaveHiddenStates),
		bhmm.WithSeed(c.Seed),
	}, nil
}
