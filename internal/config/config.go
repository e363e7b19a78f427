// Package config loads the optional YAML settings file of a build run.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds run settings that are not positional arguments.
type Config struct {
	ExpectedLabels int           `yaml:"expected_labels"` // 0 disables the check
	Dispatch       string        `yaml:"dispatch"`        // sequential, pool
	MaxChunks      int           `yaml:"max_chunks"`      // 0 processes every chunk
	Seed           uint64        `yaml:"seed"`            // 0 draws a random seed
	JPEGQuality    int           `yaml:"jpeg_quality"`
	LogLevel       string        `yaml:"log_level"`
	LogJSON        bool          `yaml:"log_json"`
	Progress       bool          `yaml:"progress"`
	Flow           FlowConfig    `yaml:"flow"`
	Staging        StagingConfig `yaml:"staging"`
}

// FlowConfig overrides the optical flow parameters.
type FlowConfig struct {
	PyrScale   float64 `yaml:"pyr_scale"`
	Levels     int     `yaml:"levels"`
	WinSize    int     `yaml:"win_size"`
	Iterations int     `yaml:"iterations"`
	PolyN      int     `yaml:"poly_n"`
	PolySigma  float64 `yaml:"poly_sigma"`
}

// StagingConfig configures frame burst staging.
type StagingConfig struct {
	Root string  `yaml:"root"`
	FPS  float64 `yaml:"fps"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		ExpectedLabels: 400,
		Dispatch:       "sequential",
		JPEGQuality:    95,
		LogLevel:       "info",
		Progress:       true,
		Flow: FlowConfig{
			PyrScale:   0.5,
			Levels:     3,
			WinSize:    12,
			Iterations: 3,
			PolyN:      5,
			PolySigma:  1.2,
		},
		Staging: StagingConfig{Root: "/dev/shm", FPS: 8},
	}
}

// Load reads path over the defaults and validates the result. Keys absent
// from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.ExpectedLabels < 0 {
		errs = append(errs, fmt.Errorf("expected_labels must be >= 0, got %d", c.ExpectedLabels))
	}
	switch c.Dispatch {
	case "", "sequential", "pool":
	default:
		errs = append(errs, fmt.Errorf("dispatch must be sequential or pool, got %q", c.Dispatch))
	}
	if c.MaxChunks < 0 {
		errs = append(errs, fmt.Errorf("max_chunks must be >= 0, got %d", c.MaxChunks))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be in [1,100], got %d", c.JPEGQuality))
	}
	if c.Flow.PyrScale <= 0 || c.Flow.PyrScale >= 1 {
		errs = append(errs, fmt.Errorf("flow.pyr_scale must be in (0,1), got %g", c.Flow.PyrScale))
	}
	if c.Flow.Levels < 0 {
		errs = append(errs, fmt.Errorf("flow.levels must be >= 0, got %d", c.Flow.Levels))
	}
	if c.Flow.WinSize < 1 || c.Flow.Iterations < 1 {
		errs = append(errs, errors.New("flow.win_size and flow.iterations must be positive"))
	}
	if c.Flow.PolyN != 5 && c.Flow.PolyN != 7 {
		errs = append(errs, fmt.Errorf("flow.poly_n must be 5 or 7, got %d", c.Flow.PolyN))
	}
	if c.Staging.FPS <= 0 {
		errs = append(errs, fmt.Errorf("staging.fps must be positive, got %g", c.Staging.FPS))
	}
	return errors.Join(errs...)
}
