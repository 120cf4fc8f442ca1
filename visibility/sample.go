// Package visibility samples points on tower facades and scores how far
// outward probe rays travel before the surrounding environment stops them.
package visibility

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/geom"
	"github.com/pthm-cable/towergen/tower"
)

// Sample is a facade point with its outward normal.
type Sample struct {
	Point  r3.Vec
	Normal r3.Vec
	Voxel  int // index of the voxel the sample lies on
}

// SampleMidpoints places one sample at the center of each side face of every
// voxel.
func SampleMidpoints(s *tower.Shape) []Sample {
	if s.Len() == 0 {
		return nil
	}
	samples := make([]Sample, 0, 4*s.Len())
	for i, v := range s.Voxels {
		for _, f := range v.SideFaces() {
			samples = append(samples, Sample{Point: f.Center(), Normal: f.Normal, Voxel: i})
		}
	}
	return samples
}

// SampleGrid places (u+1)*(v+1) samples on each side face of every voxel, on
// a regular grid inset from the face edges by offset times the face size.
func SampleGrid(s *tower.Shape, u, v int, offset float64) []Sample {
	if s.Len() == 0 || u < 1 || v < 1 {
		return nil
	}
	samples := make([]Sample, 0, 4*s.Len()*(u+1)*(v+1))
	span := 1 - 2*offset
	for i, vox := range s.Voxels {
		for _, f := range vox.SideFaces() {
			samples = appendGrid(samples, f, u, v, offset, span, i)
		}
	}
	return samples
}

func appendGrid(samples []Sample, f geom.Face, u, v int, offset, span float64, voxel int) []Sample {
	du := span / float64(u)
	dv := span / float64(v)
	for l := 0; l <= u; l++ {
		for m := 0; m <= v; m++ {
			p := f.PointAt(offset+du*float64(l), offset+dv*float64(m))
			samples = append(samples, Sample{Point: p, Normal: f.Normal, Voxel: voxel})
		}
	}
	return samples
}
