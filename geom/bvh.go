package geom

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxLeafTriangles is the split threshold for BVH nodes.
const maxLeafTriangles = 4

type bvhNode struct {
	bounds      r3.Box
	left, right *bvhNode
	tris        []r3.Triangle // non-nil only for leaves
}

func buildBVH(tris []r3.Triangle) *bvhNode {
	if len(tris) == 0 {
		return nil
	}
	node := &bvhNode{bounds: trianglesBounds(tris)}
	if len(tris) <= maxLeafTriangles {
		node.tris = tris
		return node
	}

	// Split at the median centroid along the axis of widest centroid spread.
	c0 := tris[0].Centroid()
	spread := r3.Box{Min: c0, Max: c0}
	for _, t := range tris[1:] {
		c := t.Centroid()
		spread.Min = minVec(spread.Min, c)
		spread.Max = maxVec(spread.Max, c)
	}
	ext := spread.Size()
	axis := AxisX
	if ext.Y > ext.X && ext.Y >= ext.Z {
		axis = AxisY
	} else if ext.Z > ext.X && ext.Z > ext.Y {
		axis = AxisZ
	}
	sort.Slice(tris, func(i, j int) bool {
		return Component(tris[i].Centroid(), axis) < Component(tris[j].Centroid(), axis)
	})

	mid := len(tris) / 2
	node.left = buildBVH(tris[:mid])
	node.right = buildBVH(tris[mid:])
	return node
}

func trianglesBounds(tris []r3.Triangle) r3.Box {
	b := r3.Box{Min: tris[0][0], Max: tris[0][0]}
	for _, t := range tris {
		for _, p := range t {
			b.Min = minVec(b.Min, p)
			b.Max = maxVec(b.Max, p)
		}
	}
	return b
}

// slab caches reciprocal ray directions for box tests.
type slab struct {
	inv      [3]float64
	parallel [3]bool
}

func newSlab(r Ray) slab {
	var s slab
	for i, d := range [3]float64{r.Dir.X, r.Dir.Y, r.Dir.Z} {
		if math.Abs(d) < parallelEpsilon {
			s.parallel[i] = true
			continue
		}
		s.inv[i] = 1 / d
	}
	return s
}

// hitsBox reports whether the segment [0, limit] of r crosses b.
func (s slab) hitsBox(r Ray, b r3.Box, limit float64) bool {
	tmin, tmax := 0.0, limit
	o := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := 0; i < 3; i++ {
		if s.parallel[i] {
			if o[i] < lo[i] || o[i] > hi[i] {
				return false
			}
			continue
		}
		t1 := (lo[i] - o[i]) * s.inv[i]
		t2 := (hi[i] - o[i]) * s.inv[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}

// walk calls fn with the distance of every triangle hit within *limit. The
// callback may shrink *limit to prune the search, or return false to stop.
func (n *bvhNode) walk(r Ray, s slab, limit *float64, fn func(t float64) bool) bool {
	if n == nil || !s.hitsBox(r, n.bounds, *limit) {
		return true
	}
	if n.tris != nil {
		for _, tri := range n.tris {
			if t, ok := intersectTriangle(r, tri, *limit); ok {
				if !fn(t) {
					return false
				}
			}
		}
		return true
	}
	if !n.left.walk(r, s, limit, fn) {
		return false
	}
	return n.right.walk(r, s, limit, fn)
}
