// Package tower builds voxelised tower shapes from decoded phenotypes by
// recursive longest-axis subdivision of one bounding volume.
package tower

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/geom"
)

// ErrCountExceedsVoxels is returned when a reduction or rotation count is
// larger than the voxel lattice it selects from.
var ErrCountExceedsVoxels = errors.New("tower: count exceeds voxel count")

const (
	// DefaultFloorHeight is the storey height in metres.
	DefaultFloorHeight = 4.5

	// indexPool is the size of the index range reduction and rotation draw
	// from. Only the first 15 voxels of the 16-voxel lattice can be selected.
	indexPool = 15

	minRotationDeg = 43.0
)

// Shape is an ordered list of voxels.
type Shape struct {
	Voxels []geom.Box
	Floors int
}

// Len returns the voxel count.
func (s *Shape) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Voxels)
}

// Volume returns the summed voxel volume.
func (s *Shape) Volume() float64 {
	if s == nil {
		return 0
	}
	var v float64
	for _, b := range s.Voxels {
		v += b.Volume()
	}
	return v
}

// Height returns the bounding volume height.
func (s *Shape) Height(floorHeight float64) float64 {
	return float64(s.Floors) * floorHeight
}

// Mesh tessellates every voxel into one mesh.
func (s *Shape) Mesh() *geom.Mesh {
	if s == nil {
		return geom.NewMesh(nil)
	}
	return geom.MeshFromBoxes(s.Voxels)
}

// Builder turns phenotypes into shapes.
type Builder struct {
	FloorHeight float64 // metres per storey
	Reduce      bool    // apply voxel reduction before rotation
}

// NewBuilder returns a builder with the default floor height.
func NewBuilder(reduce bool) Builder {
	return Builder{FloorHeight: DefaultFloorHeight, Reduce: reduce}
}

func (b Builder) floorHeight() float64 {
	if b.FloorHeight <= 0 {
		return DefaultFloorHeight
	}
	return b.FloorHeight
}

// Volume returns the tower's bounding box and its floor count. The footprint
// spans twice the phenotype half-extents, centered at the plot center plus the
// phenotype offset.
func (b Builder) Volume(ph genome.Phenotype, p genome.Params) (geom.Box, int, error) {
	return b.volume(ph.HalfX, ph.HalfY, ph.Position(p.Plot), p)
}

func (b Builder) volume(halfX, halfY float64, pos r3.Vec, p genome.Params) (geom.Box, int, error) {
	footprint := 4 * halfX * halfY
	if footprint <= 0 {
		return geom.Box{}, 0, fmt.Errorf("%w: empty footprint %.3fx%.3f", geom.ErrDegenerateSplit, 2*halfX, 2*halfY)
	}
	totalFloorArea := p.FloorAreaRatio * p.Plot.Area() / 100
	floors := int(math.Floor(totalFloorArea / footprint))
	if floors < 1 {
		return geom.Box{}, 0, fmt.Errorf("%w: zero floors (floor area %.1f, footprint %.1f)",
			geom.ErrDegenerateSplit, totalFloorArea, footprint)
	}
	height := float64(floors) * b.floorHeight()
	box := geom.NewBox(
		r3.Vec{X: pos.X - halfX, Y: pos.Y - halfY},
		r3.Vec{X: pos.X + halfX, Y: pos.Y + halfY, Z: height},
	)
	return box, floors, nil
}

// Divide cuts box in two with the plane through the cut point, normal to the
// box's longest axis.
func Divide(box geom.Box, cut genome.CutPoint) ([2]geom.Box, error) {
	p := box.PointAt(cut.X, cut.Y, cut.Z)
	return geom.Split(box, p, box.LongestAxis())
}

// Subdivide applies one subdivision pass per cut point, doubling the voxel
// count each pass.
func Subdivide(box geom.Box, cuts []genome.CutPoint) ([]geom.Box, error) {
	voxels := []geom.Box{box}
	for stage, cut := range cuts {
		next := make([]geom.Box, 0, 2*len(voxels))
		for _, v := range voxels {
			pieces, err := Divide(v, cut)
			if err != nil {
				return nil, fmt.Errorf("subdivision stage %d: %w", stage, err)
			}
			next = append(next, pieces[0], pieces[1])
		}
		voxels = next
	}
	return voxels, nil
}

// Reduce keeps the voxels whose index falls in a retain-set of int(n)
// distinct indices drawn from the first 15. Voxel 0 is always dropped. The
// count controls how many voxels survive, not how many are removed.
func Reduce(voxels []geom.Box, n float64, lattice int, rng *rand.Rand) ([]geom.Box, error) {
	count := int(n)
	if count > lattice {
		return nil, fmt.Errorf("%w: reduction %d > %d", ErrCountExceedsVoxels, count, lattice)
	}
	keep := pickIndices(rng, indexPool, count)
	out := make([]geom.Box, 0, len(voxels))
	for i, v := range voxels {
		if i != 0 && keep[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// Rotate turns int(n) distinct voxels, drawn from the first 15 indices, about
// their vertical center axis by a uniform angle in [43°, angleUpper]. Indices
// past the end of voxels select nothing.
func Rotate(voxels []geom.Box, n, angleUpper float64, lattice int, rng *rand.Rand) ([]geom.Box, error) {
	count := int(n)
	if count > lattice {
		return nil, fmt.Errorf("%w: rotation %d > %d", ErrCountExceedsVoxels, count, lattice)
	}
	selected := pickIndices(rng, indexPool, count)
	out := make([]geom.Box, len(voxels))
	for i, v := range voxels {
		if selected[i] {
			deg := minRotationDeg + rng.Float64()*(angleUpper-minRotationDeg)
			v = v.Rotated(deg * math.Pi / 180)
		}
		out[i] = v
	}
	return out, nil
}

// Build produces the shape for a phenotype: bounding volume, four
// subdivision passes, optional reduction, then rotation.
func (b Builder) Build(ph genome.Phenotype, p genome.Params, rng *rand.Rand) (*Shape, error) {
	box, floors, err := b.Volume(ph, p)
	if err != nil {
		return nil, err
	}
	voxels, err := Subdivide(box, ph.Cuts[:])
	if err != nil {
		return nil, err
	}
	lattice := len(voxels)

	if b.Reduce {
		voxels, err = Reduce(voxels, ph.ReductionNum, lattice, rng)
		if err != nil {
			return nil, err
		}
	}
	voxels, err = Rotate(voxels, ph.RotationNum, ph.AngleUpper, lattice, rng)
	if err != nil {
		return nil, err
	}
	return &Shape{Voxels: voxels, Floors: floors}, nil
}

// pickIndices returns a set of count distinct indices drawn from [0, pool).
func pickIndices(rng *rand.Rand, pool, count int) map[int]bool {
	if count > pool {
		count = pool
	}
	set := make(map[int]bool, count)
	if count <= 0 {
		return set
	}
	for _, i := range rng.Perm(pool)[:count] {
		set[i] = true
	}
	return set
}
