package tower

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/geom"
)

// RandomOptions configure BuildRandom.
type RandomOptions struct {
	Steps        int  // extra division passes after the first; voxels = 2^(Steps+1)
	Reduce       bool // delete ReductionMax voxels before rotating
	ReductionMax int  // voxels to delete
	RotationMax  int  // voxels to rotate
}

// Standalone builder rotation range in degrees.
const (
	randomRotationMin = 45
	randomRotationMax = 345
)

// BuildRandom builds an unguided tower: random footprint within the coverage
// bounds, random position within a third of the plot from its center, and a
// random cut point on the 0.1 grid in [0.3, 0.8] for every division.
//
// Unlike Reduce, ReductionMax here is the number of voxels deleted.
func (b Builder) BuildRandom(p genome.Params, opts RandomOptions, rng *rand.Rand) (*Shape, error) {
	if opts.Steps < 0 {
		return nil, fmt.Errorf("tower: negative division steps %d", opts.Steps)
	}

	baseX := 1.5 * p.CoverageRatio * p.Plot.Width
	baseY := 1.5 * p.CoverageRatio * p.Plot.Height
	halfX := float64(intBetween(rng, int(baseX), int(1.2*baseX)))
	halfY := float64(intBetween(rng, int(baseY), int(1.2*baseY)))
	pos := r3.Vec{
		X: p.Plot.Center.X + float64(intBetween(rng, -int(p.Plot.Width/3), int(p.Plot.Width/3))),
		Y: p.Plot.Center.Y + float64(intBetween(rng, -int(p.Plot.Height/3), int(p.Plot.Height/3))),
	}

	box, floors, err := b.volume(halfX, halfY, pos, p)
	if err != nil {
		return nil, err
	}

	voxels := []geom.Box{box}
	for pass := 0; pass <= opts.Steps; pass++ {
		next := make([]geom.Box, 0, 2*len(voxels))
		for _, v := range voxels {
			cut := genome.CutPoint{X: gridCut(rng), Y: gridCut(rng), Z: gridCut(rng)}
			pieces, err := Divide(v, cut)
			if err != nil {
				return nil, fmt.Errorf("division pass %d: %w", pass, err)
			}
			next = append(next, pieces[0], pieces[1])
		}
		voxels = next
	}

	if opts.Reduce {
		voxels, err = deleteRandom(voxels, opts.ReductionMax, rng)
		if err != nil {
			return nil, err
		}
	}
	voxels, err = rotateRandom(voxels, opts.RotationMax, rng)
	if err != nil {
		return nil, err
	}
	return &Shape{Voxels: voxels, Floors: floors}, nil
}

// deleteRandom keeps len-n voxels drawn from all but the last index; voxel 0
// is always dropped.
func deleteRandom(voxels []geom.Box, n int, rng *rand.Rand) ([]geom.Box, error) {
	if n > len(voxels)-1 {
		return nil, fmt.Errorf("%w: reduction %d > %d", ErrCountExceedsVoxels, n, len(voxels)-1)
	}
	keep := pickIndices(rng, len(voxels)-1, len(voxels)-n)
	out := make([]geom.Box, 0, len(voxels))
	for i, v := range voxels {
		if i != 0 && keep[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// rotateRandom turns n voxels, drawn from all but the last index, by a
// uniform angle in [45°, 345°).
func rotateRandom(voxels []geom.Box, n int, rng *rand.Rand) ([]geom.Box, error) {
	if n > len(voxels) {
		return nil, fmt.Errorf("%w: rotation %d > %d", ErrCountExceedsVoxels, n, len(voxels))
	}
	selected := pickIndices(rng, len(voxels)-1, n)
	out := make([]geom.Box, len(voxels))
	for i, v := range voxels {
		if selected[i] {
			deg := float64(intBetween(rng, randomRotationMin, randomRotationMax))
			v = v.Rotated(deg * math.Pi / 180)
		}
		out[i] = v
	}
	return out, nil
}

// gridCut draws one of 0.3, 0.4, ..., 0.8.
func gridCut(rng *rand.Rand) float64 {
	return float64(intBetween(rng, 3, 9)) * 0.1
}

// intBetween draws an integer in [lo, hi). It returns lo when the range is
// empty.
func intBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo)
}

// Info describes a shape in one line.
func Info(s *Shape, floorHeight float64) string {
	if s.Len() == 0 {
		return "Empty tower"
	}
	return fmt.Sprintf("%d floors tower, with total height of %gm. and %d voxels.",
		s.Floors, s.Height(floorHeight), s.Len())
}
