package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Evolution.Population != 50 {
		t.Errorf("Population = %d, want 50", cfg.Evolution.Population)
	}
	if cfg.Visibility.SearchRadius != 200 {
		t.Errorf("SearchRadius = %v, want 200", cfg.Visibility.SearchRadius)
	}
	if cfg.Tower.FloorHeight != 4.5 {
		t.Errorf("FloorHeight = %v, want 4.5", cfg.Tower.FloorHeight)
	}
	if cfg.Derived.PlotArea != 10000 || cfg.Derived.TotalFloorArea != 70000 {
		t.Errorf("Derived = %+v, want area 10000 and floor area 70000", cfg.Derived)
	}
	if cfg.Derived.Objective != "obstruction" {
		t.Errorf("Objective = %q, want obstruction", cfg.Derived.Objective)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte(`
plot:
  width: 60
evolution:
  objective: Both
environment:
  landmarks:
    - min: [100, -10, 0]
      max: [110, 10, 80]
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Plot.Width != 60 || cfg.Plot.Height != 100 {
		t.Errorf("plot = %vx%v, want 60x100", cfg.Plot.Width, cfg.Plot.Height)
	}
	if cfg.Derived.Objective != "both" {
		t.Errorf("Objective = %q, want both", cfg.Derived.Objective)
	}
	if len(cfg.Environment.Landmarks) != 1 || cfg.Environment.Landmarks[0].Max[2] != 80 {
		t.Errorf("Landmarks = %+v", cfg.Environment.Landmarks)
	}
	// Untouched sections keep their defaults.
	if cfg.Evolution.MutationRate != 0.05 {
		t.Errorf("MutationRate = %v, want 0.05", cfg.Evolution.MutationRate)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file returned nil error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("plot: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed file returned nil error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero radius", func(c *Config) { c.Visibility.SearchRadius = 0 }},
		{"tiny population", func(c *Config) { c.Evolution.Population = 1 }},
		{"unknown objective", func(c *Config) { c.Evolution.Objective = "beauty" }},
		{"negative coverage", func(c *Config) { c.Plot.CoverageRatio = -1 }},
		{"zero FAR", func(c *Config) { c.Plot.FloorAreaRatio = 0 }},
		{"bad renderer", func(c *Config) { c.Capture.Renderer = "opengl" }},
		{"flat obstacle", func(c *Config) {
			c.Environment.Obstacles = []BoxConfig{{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 0}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			cfg.computeDerived()
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestObjectiveAliases(t *testing.T) {
	tests := map[string]string{
		"obstruction": "obstruction",
		"0":           "obstruction",
		" VIEW ":      "view",
		"1":           "view",
		"2":           "both",
		"":            "",
	}

	for in, want := range tests {
		cfg := &Config{Evolution: EvolutionConfig{Objective: in}}
		cfg.computeDerived()
		if cfg.Derived.Objective != want {
			t.Errorf("objective %q -> %q, want %q", in, cfg.Derived.Objective, want)
		}
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Evolution.Seed = 1234
	cfg.Environment.Obstacles = []BoxConfig{{Min: [3]float64{1, 2, 0}, Max: [3]float64{5, 6, 30}}}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Evolution.Seed != 1234 || len(got.Environment.Obstacles) != 1 {
		t.Errorf("round trip lost values: seed %d, %d obstacles", got.Evolution.Seed, len(got.Environment.Obstacles))
	}
}

func TestRecompute(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Evolution.Objective = "view"
	cfg.Plot.Width = 50
	cfg.Recompute()

	if cfg.Derived.Objective != "view" {
		t.Errorf("Objective = %q, want view", cfg.Derived.Objective)
	}
	if cfg.Derived.PlotArea != 5000 {
		t.Errorf("PlotArea = %v, want 5000", cfg.Derived.PlotArea)
	}
	if cfg.Telemetry.HallOfFameSize != 10 {
		t.Errorf("HallOfFameSize = %d, want 10", cfg.Telemetry.HallOfFameSize)
	}
}
