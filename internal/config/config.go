// Package config loads the YAML configuration shared by the CLI and the
// host selection logic.
//
// Example file:
//
//	host:
//	  kind: auto          # local | r | auto
//	  executable: R
//	check:
//	  step: 1.0e-6
//	  rel_tol: 1.0e-4
//	build:
//	  include_dirs: [/usr/share/R/include]
//	  lib_dirs: [/usr/lib/R/lib]
//	  libs: [R]
//	  allow_undefined: true
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Host kinds.
const (
	HostLocal = "local"
	HostR     = "r"
	HostAuto  = "auto"
)

// Config is the top-level configuration.
type Config struct {
	Host  HostConfig  `yaml:"host"`
	Check CheckConfig `yaml:"check"`
	Build BuildConfig `yaml:"build"`
}

// HostConfig selects the foreign-routine host.
type HostConfig struct {
	Kind       string   `yaml:"kind"`       // local, r or auto
	Executable string   `yaml:"executable"` // R binary for kind r/auto
	Args       []string `yaml:"args"`       // extra interpreter arguments
}

// CheckConfig controls finite-difference gradient validation.
type CheckConfig struct {
	Step   float64 `yaml:"step"`
	RelTol float64 `yaml:"rel_tol"`
	AbsTol float64 `yaml:"abs_tol"`
}

// BuildConfig holds the compiler and linker flags for the generated model
// binary.
type BuildConfig struct {
	IncludeDirs    []string `yaml:"include_dirs"`
	LibDirs        []string `yaml:"lib_dirs"`
	Libs           []string `yaml:"libs"`
	AllowUndefined bool     `yaml:"allow_undefined"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Host: HostConfig{
			Kind:       HostAuto,
			Executable: "R",
		},
		Check: CheckConfig{
			Step:   1e-6,
			RelTol: 1e-4,
			AbsTol: 1e-8,
		},
		Build: BuildConfig{
			AllowUndefined: true,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: reading file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Host.Kind {
	case HostLocal, HostR, HostAuto:
	default:
		return errors.Errorf("unknown host kind %q (want local, r or auto)", c.Host.Kind)
	}
	if c.Host.Kind != HostLocal && c.Host.Executable == "" {
		return errors.Errorf("host kind %q needs an executable", c.Host.Kind)
	}
	if !(c.Check.Step > 0) {
		return errors.Errorf("check.step must be positive, got %g", c.Check.Step)
	}
	if !(c.Check.RelTol > 0) {
		return errors.Errorf("check.rel_tol must be positive, got %g", c.Check.RelTol)
	}
	if c.Check.AbsTol < 0 {
		return errors.Errorf("check.abs_tol must not be negative, got %g", c.Check.AbsTol)
	}
	return nil
}
