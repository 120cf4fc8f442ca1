package geom

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ray is a segment from Origin along the unit direction Dir, Length long.
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
	Length float64
}

// NewRay normalizes dir.
func NewRay(origin, dir r3.Vec, length float64) Ray {
	return Ray{Origin: origin, Dir: r3.Unit(dir), Length: length}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

// End returns the far end of the segment.
func (r Ray) End() r3.Vec {
	return r.At(r.Length)
}

// Hit is one ray/mesh intersection.
type Hit struct {
	T     float64
	Point r3.Vec
}

// Mesh is a triangle soup. The acceleration structure is built on first
// query; after that the mesh is safe for concurrent readers. Do not modify
// Triangles once the mesh has been queried.
type Mesh struct {
	Triangles []r3.Triangle

	once sync.Once
	root *bvhNode
}

// NewMesh wraps tris.
func NewMesh(tris []r3.Triangle) *Mesh {
	return &Mesh{Triangles: tris}
}

// boxTriangles lists corner indices for the 12 outward-wound triangles of a
// box, two per face.
var boxTriangles = [12][3]int{
	{0, 2, 1}, {0, 3, 2}, // bottom
	{4, 5, 6}, {4, 6, 7}, // top
	{0, 1, 5}, {0, 5, 4}, // -Y
	{1, 2, 6}, {1, 6, 5}, // +X
	{2, 3, 7}, {2, 7, 6}, // +Y
	{3, 0, 4}, {3, 4, 7}, // -X
}

// Tessellate converts a box to a closed 12-triangle mesh.
func Tessellate(b Box) *Mesh {
	return NewMesh(appendBox(nil, b))
}

// MeshFromBoxes tessellates every box into one mesh.
func MeshFromBoxes(boxes []Box) *Mesh {
	tris := make([]r3.Triangle, 0, len(boxes)*len(boxTriangles))
	for _, b := range boxes {
		tris = appendBox(tris, b)
	}
	return NewMesh(tris)
}

func appendBox(tris []r3.Triangle, b Box) []r3.Triangle {
	c := b.Corners()
	for _, idx := range boxTriangles {
		tris = append(tris, r3.Triangle{c[idx[0]], c[idx[1]], c[idx[2]]})
	}
	return tris
}

// Merge joins meshes into a new mesh. Nil meshes are skipped.
func Merge(meshes ...*Mesh) *Mesh {
	n := 0
	for _, m := range meshes {
		if m != nil {
			n += len(m.Triangles)
		}
	}
	tris := make([]r3.Triangle, 0, n)
	for _, m := range meshes {
		if m != nil {
			tris = append(tris, m.Triangles...)
		}
	}
	return NewMesh(tris)
}

// Len returns the triangle count. A nil mesh is empty.
func (m *Mesh) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles)
}

// Bounds returns the axis-aligned bounds of all triangles.
func (m *Mesh) Bounds() r3.Box {
	if m.Len() == 0 {
		return r3.Box{}
	}
	return trianglesBounds(m.Triangles)
}

// Prepare builds the acceleration structure ahead of the first query.
func (m *Mesh) Prepare() {
	if m.Len() > 0 {
		m.bvh()
	}
}

func (m *Mesh) bvh() *bvhNode {
	m.once.Do(func() {
		tris := make([]r3.Triangle, len(m.Triangles))
		copy(tris, m.Triangles)
		m.root = buildBVH(tris)
	})
	return m.root
}

// Intersect returns every intersection of r with the mesh with 0 < T <= Length,
// ordered by distance from the ray origin.
func (m *Mesh) Intersect(r Ray) []Hit {
	if m.Len() == 0 {
		return nil
	}
	var hits []Hit
	limit := r.Length
	m.bvh().walk(r, newSlab(r), &limit, func(t float64) bool {
		hits = append(hits, Hit{T: t, Point: r.At(t)})
		return true
	})
	sort.Slice(hits, func(i, j int) bool { return hits[i].T < hits[j].T })
	return hits
}

// Hits reports whether r intersects the mesh anywhere along its length.
func (m *Mesh) Hits(r Ray) bool {
	if m.Len() == 0 {
		return false
	}
	found := false
	limit := r.Length
	m.bvh().walk(r, newSlab(r), &limit, func(float64) bool {
		found = true
		return false
	})
	return found
}

// Closest returns the intersection nearest to the ray origin.
func (m *Mesh) Closest(r Ray) (Hit, bool) {
	if m.Len() == 0 {
		return Hit{}, false
	}
	best := math.Inf(1)
	limit := r.Length
	m.bvh().walk(r, newSlab(r), &limit, func(t float64) bool {
		if t < best {
			best = t
			limit = t
		}
		return true
	})
	if math.IsInf(best, 1) {
		return Hit{}, false
	}
	return Hit{T: best, Point: r.At(best)}, true
}

const (
	parallelEpsilon = 1e-12
	hitEpsilon      = 1e-9
)

// intersectTriangle is the Möller–Trumbore test. It returns the distance along
// r when the hit lies in (0, limit].
func intersectTriangle(r Ray, tri r3.Triangle, limit float64) (float64, bool) {
	e1 := r3.Sub(tri[1], tri[0])
	e2 := r3.Sub(tri[2], tri[0])
	p := r3.Cross(r.Dir, e2)
	det := r3.Dot(e1, p)
	if math.Abs(det) < parallelEpsilon {
		return 0, false
	}
	inv := 1 / det

	s := r3.Sub(r.Origin, tri[0])
	u := r3.Dot(s, p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := r3.Cross(s, e1)
	v := r3.Dot(r.Dir, q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := r3.Dot(e2, q) * inv
	if t <= hitEpsilon || t > limit {
		return 0, false
	}
	return t, true
}
