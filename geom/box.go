// Package geom is the small solid-modelling kernel used to build and probe towers:
// oriented boxes, plane splits, tessellation and ray/mesh intersection.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerateSplit is returned when a cutting plane does not produce two
// non-empty pieces.
var ErrDegenerateSplit = errors.New("geom: degenerate split")

// splitTolerance is the minimum thickness of a piece produced by Split.
const splitTolerance = 1e-3

// Axis names one of the three local box axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Box is a rectangular solid. Angle rotates the box about the vertical axis
// through Center; a zero Angle means the box is axis-aligned.
type Box struct {
	Center r3.Vec
	Half   r3.Vec
	Angle  float64
}

// NewBox returns the axis-aligned box spanning min and max. Corners may be
// given in any order.
func NewBox(min, max r3.Vec) Box {
	return FromBounds(r3.NewBox(min.X, min.Y, min.Z, max.X, max.Y, max.Z))
}

// FromBounds converts an axis-aligned bounding box.
func FromBounds(b r3.Box) Box {
	return Box{Center: b.Center(), Half: r3.Scale(0.5, b.Size())}
}

// Size returns the full edge lengths along the local axes.
func (b Box) Size() r3.Vec {
	return r3.Scale(2, b.Half)
}

// Volume returns the box volume.
func (b Box) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// Axes returns the unit local axes in world space.
func (b Box) Axes() (x, y, z r3.Vec) {
	sin, cos := math.Sincos(b.Angle)
	return r3.Vec{X: cos, Y: sin}, r3.Vec{X: -sin, Y: cos}, r3.Vec{Z: 1}
}

// PointAt returns the point at fractional coordinates (u, v, w) of the box's
// local parameter domain, where 0 is the minimum and 1 the maximum side.
func (b Box) PointAt(u, v, w float64) r3.Vec {
	ax, ay, az := b.Axes()
	p := b.Center
	p = r3.Add(p, r3.Scale((2*u-1)*b.Half.X, ax))
	p = r3.Add(p, r3.Scale((2*v-1)*b.Half.Y, ay))
	p = r3.Add(p, r3.Scale((2*w-1)*b.Half.Z, az))
	return p
}

// Corners returns the eight corners. Corners 0-3 run counter-clockwise around
// the bottom starting at the local minimum, 4-7 repeat them on the top, the
// same ordering as r3.Box.Vertices.
func (b Box) Corners() [8]r3.Vec {
	return [8]r3.Vec{
		b.PointAt(0, 0, 0),
		b.PointAt(1, 0, 0),
		b.PointAt(1, 1, 0),
		b.PointAt(0, 1, 0),
		b.PointAt(0, 0, 1),
		b.PointAt(1, 0, 1),
		b.PointAt(1, 1, 1),
		b.PointAt(0, 1, 1),
	}
}

// Bounds returns the world axis-aligned bounding box.
func (b Box) Bounds() r3.Box {
	if b.Angle == 0 {
		return r3.Box{Min: r3.Sub(b.Center, b.Half), Max: r3.Add(b.Center, b.Half)}
	}
	c := b.Corners()
	out := r3.Box{Min: c[0], Max: c[0]}
	for _, p := range c[1:] {
		out.Min = minVec(out.Min, p)
		out.Max = maxVec(out.Max, p)
	}
	return out
}

// Rotated returns the box rotated by angle radians about the vertical axis
// through its center. Size and volume are unchanged.
func (b Box) Rotated(angle float64) Box {
	b.Angle += angle
	return b
}

// LongestAxis returns the local axis with the greatest extent. Ties resolve
// to the later axis in X, Y, Z order.
func (b Box) LongestAxis() Axis {
	best := AxisX
	for _, a := range []Axis{AxisY, AxisZ} {
		if Component(b.Half, a) >= Component(b.Half, best) {
			best = a
		}
	}
	return best
}

// Split cuts an axis-aligned box with the plane through p whose normal is
// axis and returns the two pieces, lower side first.
func Split(b Box, p r3.Vec, axis Axis) ([2]Box, error) {
	if b.Angle != 0 {
		return [2]Box{}, fmt.Errorf("%w: box is rotated", ErrDegenerateSplit)
	}
	bounds := b.Bounds()
	lo, hi := Component(bounds.Min, axis), Component(bounds.Max, axis)
	at := Component(p, axis)
	if at-lo < splitTolerance || hi-at < splitTolerance {
		return [2]Box{}, fmt.Errorf("%w: plane %s=%.4f outside [%.4f, %.4f]", ErrDegenerateSplit, axis, at, lo, hi)
	}

	lower, upper := bounds, bounds
	lower.Max = WithComponent(lower.Max, axis, at)
	upper.Min = WithComponent(upper.Min, axis, at)
	return [2]Box{FromBounds(lower), FromBounds(upper)}, nil
}

// Face is a planar rectangle spanned by U and V from Origin.
type Face struct {
	Origin r3.Vec
	U, V   r3.Vec
	Normal r3.Vec
}

// PointAt returns the point at face parameters (u, v) in [0, 1].
func (f Face) PointAt(u, v float64) r3.Vec {
	return r3.Add(f.Origin, r3.Add(r3.Scale(u, f.U), r3.Scale(v, f.V)))
}

// Center returns the parametric midpoint of the face.
func (f Face) Center() r3.Vec {
	return f.PointAt(0.5, 0.5)
}

// SideFaces returns the four vertical faces (no top or bottom) with outward
// normals, starting with the face on the local -Y side and running
// counter-clockwise.
func (b Box) SideFaces() [4]Face {
	c := b.Corners()
	up := r3.Sub(c[4], c[0])
	var faces [4]Face
	for i := 0; i < 4; i++ {
		origin := c[i]
		u := r3.Sub(c[(i+1)%4], origin)
		faces[i] = Face{Origin: origin, U: u, V: up, Normal: unitOrZero(r3.Cross(u, up))}
	}
	return faces
}

// Component returns the coordinate of v along axis.
func Component(v r3.Vec, axis Axis) float64 {
	switch axis {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// WithComponent returns v with the coordinate along axis replaced.
func WithComponent(v r3.Vec, axis Axis, value float64) r3.Vec {
	switch axis {
	case AxisX:
		v.X = value
	case AxisY:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

func unitOrZero(v r3.Vec) r3.Vec {
	if r3.Norm(v) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(v)
}

func minVec(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

func maxVec(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}
