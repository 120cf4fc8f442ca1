// Package site assembles the plot and the surrounding geometry a tower is
// evaluated against.
package site

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/config"
	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/geom"
)

// Site is a plot with its neighbouring obstacles and landmarks. Meshes are
// read-only once the site is built.
type Site struct {
	Plot      genome.Plot
	Obstacles *geom.Mesh
	Landmarks *geom.Mesh

	envOnce sync.Once
	env     *geom.Mesh
}

// New builds a site from obstacle and landmark boxes.
func New(plot genome.Plot, obstacles, landmarks []geom.Box) *Site {
	return &Site{
		Plot:      plot,
		Obstacles: geom.MeshFromBoxes(obstacles),
		Landmarks: geom.MeshFromBoxes(landmarks),
	}
}

// FromConfig builds the site described by cfg.
func FromConfig(cfg *config.Config) *Site {
	plot := genome.Plot{
		Center: r3.Vec{X: cfg.Plot.CenterX, Y: cfg.Plot.CenterY},
		Width:  cfg.Plot.Width,
		Height: cfg.Plot.Height,
	}
	return New(plot, boxes(cfg.Environment.Obstacles), boxes(cfg.Environment.Landmarks))
}

// Params returns the decode parameters for this site.
func (s *Site) Params(cfg *config.Config) genome.Params {
	return genome.Params{
		Plot:           s.Plot,
		CoverageRatio:  cfg.Plot.CoverageRatio,
		FloorAreaRatio: cfg.Plot.FloorAreaRatio,
	}
}

// Environment returns the merged obstacle and landmark mesh used for ray
// casting. The mesh is built once and shared.
func (s *Site) Environment() *geom.Mesh {
	s.envOnce.Do(func() {
		s.env = geom.Merge(s.Obstacles, s.Landmarks)
		s.env.Prepare()
	})
	return s.env
}

// Scene returns the coloured layers renderers draw: obstacles grey,
// landmarks in the landmark colour.
func (s *Site) Scene() []capture.Layer {
	return []capture.Layer{
		{Mesh: s.Obstacles, Color: capture.ObstacleColor},
		{Mesh: s.Landmarks, Color: capture.LandmarkColor},
	}
}

func boxes(cfgs []config.BoxConfig) []geom.Box {
	out := make([]geom.Box, len(cfgs))
	for i, b := range cfgs {
		out[i] = geom.NewBox(
			r3.Vec{X: b.Min[0], Y: b.Min[1], Z: b.Min[2]},
			r3.Vec{X: b.Max[0], Y: b.Max[1], Z: b.Max[2]},
		)
	}
	return out
}
