// Package config provides configuration loading for tower generation runs.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all run configuration parameters.
type Config struct {
	Plot        PlotConfig        `yaml:"plot"`
	Tower       TowerConfig       `yaml:"tower"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Visibility  VisibilityConfig  `yaml:"visibility"`
	Capture     CaptureConfig     `yaml:"capture"`
	Environment EnvironmentConfig `yaml:"environment"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PlotConfig describes the building lot.
type PlotConfig struct {
	CenterX        float64 `yaml:"center_x"`
	CenterY        float64 `yaml:"center_y"`
	Width          float64 `yaml:"width"`
	Height         float64 `yaml:"height"`
	CoverageRatio  float64 `yaml:"coverage_ratio"`   // building coverage ratio
	FloorAreaRatio float64 `yaml:"floor_area_ratio"` // percent of plot area
}

// TowerConfig holds shape builder parameters.
type TowerConfig struct {
	FloorHeight float64 `yaml:"floor_height"` // metres per storey
	Reduce      bool    `yaml:"reduce"`       // enable voxel reduction
}

// EvolutionConfig holds genetic algorithm parameters.
type EvolutionConfig struct {
	Population     int     `yaml:"population"`
	Generations    int     `yaml:"generations"` // 0 = run until interrupted
	Seed           int64   `yaml:"seed"`        // 0 = time-based
	Objective      string  `yaml:"objective"`   // obstruction, view or both
	CrossoverPoint int     `yaml:"crossover_point"`
	MutationRate   float64 `yaml:"mutation_rate"`
	Workers        int     `yaml:"workers"` // parallel evaluations during initialization
}

// VisibilityConfig holds ray evaluator parameters.
type VisibilityConfig struct {
	SearchRadius  float64 `yaml:"search_radius"`
	SurfaceOffset float64 `yaml:"surface_offset"`
	GoodRatio     float64 `yaml:"good_ratio"` // reach above which a ray is a good orientation
	Workers       int     `yaml:"workers"`    // ray casting goroutines per evaluation
}

// CaptureConfig holds landmark capture parameters.
type CaptureConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	LookDistance float64 `yaml:"look_distance"`
	SaveDir      string  `yaml:"save_dir"` // empty = don't save views
	Renderer     string  `yaml:"renderer"` // soft or raylib
	FOV          float64 `yaml:"fov"`      // vertical field of view in degrees
}

// BoxConfig is an axis-aligned box given by two opposite corners.
type BoxConfig struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// EnvironmentConfig lists the surrounding geometry.
type EnvironmentConfig struct {
	Obstacles []BoxConfig `yaml:"obstacles"`
	Landmarks []BoxConfig `yaml:"landmarks"`
}

// TelemetryConfig holds output parameters.
type TelemetryConfig struct {
	OutputDir      string `yaml:"output_dir"`        // empty = no files
	LogEvery       int    `yaml:"log_every"`         // generations between log lines
	HallOfFameSize int    `yaml:"hall_of_fame_size"` // distinct genotypes kept
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	PlotArea       float64 // Plot.Width * Plot.Height
	TotalFloorArea float64 // FloorAreaRatio * PlotArea / 100
	Objective      string  // normalised Evolution.Objective
}

// Renderer names.
const (
	RendererSoft   = "soft"
	RendererRaylib = "raylib"
)

var objectives = map[string]string{
	"obstruction": "obstruction",
	"0":           "obstruction",
	"view":        "view",
	"1":           "view",
	"both":        "both",
	"2":           "both",
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// Recompute refreshes derived values after fields are changed in code,
// e.g. by command-line overrides.
func (c *Config) Recompute() {
	c.computeDerived()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.PlotArea = c.Plot.Width * c.Plot.Height
	c.Derived.TotalFloorArea = c.Plot.FloorAreaRatio * c.Derived.PlotArea / 100
	c.Derived.Objective = objectives[strings.ToLower(strings.TrimSpace(c.Evolution.Objective))]

	if c.Telemetry.LogEvery <= 0 {
		c.Telemetry.LogEvery = 1
	}
	if c.Telemetry.HallOfFameSize <= 0 {
		c.Telemetry.HallOfFameSize = 10
	}
	if c.Capture.Renderer == "" {
		c.Capture.Renderer = RendererSoft
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	switch {
	case c.Plot.Width <= 0 || c.Plot.Height <= 0:
		return fmt.Errorf("%w: plot size %vx%v", ErrInvalid, c.Plot.Width, c.Plot.Height)
	case c.Plot.CoverageRatio <= 0:
		return fmt.Errorf("%w: coverage_ratio %v", ErrInvalid, c.Plot.CoverageRatio)
	case c.Plot.FloorAreaRatio <= 0:
		return fmt.Errorf("%w: floor_area_ratio %v", ErrInvalid, c.Plot.FloorAreaRatio)
	case c.Evolution.Population < 2:
		return fmt.Errorf("%w: population %d, need at least 2", ErrInvalid, c.Evolution.Population)
	case c.Evolution.MutationRate < 0 || c.Evolution.MutationRate > 1:
		return fmt.Errorf("%w: mutation_rate %v", ErrInvalid, c.Evolution.MutationRate)
	case c.Derived.Objective == "":
		return fmt.Errorf("%w: unknown objective %q", ErrInvalid, c.Evolution.Objective)
	case c.Visibility.SearchRadius <= 0:
		return fmt.Errorf("%w: search_radius %v", ErrInvalid, c.Visibility.SearchRadius)
	case c.Capture.Width <= 0 || c.Capture.Height <= 0:
		return fmt.Errorf("%w: capture size %dx%d", ErrInvalid, c.Capture.Width, c.Capture.Height)
	case c.Capture.Renderer != RendererSoft && c.Capture.Renderer != RendererRaylib:
		return fmt.Errorf("%w: unknown renderer %q", ErrInvalid, c.Capture.Renderer)
	}
	for i, b := range append(append([]BoxConfig{}, c.Environment.Obstacles...), c.Environment.Landmarks...) {
		for k := 0; k < 3; k++ {
			if b.Min[k] == b.Max[k] {
				return fmt.Errorf("%w: environment box %d is flat", ErrInvalid, i)
			}
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
