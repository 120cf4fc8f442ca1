package capture

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/geom"
)

// Soft renderer defaults.
var (
	SkyColor      = color.RGBA{R: 135, G: 190, B: 235, A: 255}
	ObstacleColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

const (
	defaultFOV     = 60.0 // degrees, vertical
	defaultFarClip = 5000.0
)

// Layer is one uniformly coloured mesh of a scene.
type Layer struct {
	Mesh  *geom.Mesh
	Color color.RGBA
}

// SoftRenderer ray casts a scene of coloured meshes through a pinhole
// camera. It is safe for concurrent use once constructed.
type SoftRenderer struct {
	Layers     []Layer
	Background color.RGBA
	FOV        float64 // vertical field of view in degrees
	Far        float64 // maximum view distance
}

// NewSoftRenderer returns a renderer over layers with a sky background.
func NewSoftRenderer(layers ...Layer) *SoftRenderer {
	for _, l := range layers {
		l.Mesh.Prepare()
	}
	return &SoftRenderer{
		Layers:     layers,
		Background: SkyColor,
		FOV:        defaultFOV,
		Far:        defaultFarClip,
	}
}

// Render implements Renderer.
func (s *SoftRenderer) Render(origin, target r3.Vec, width, height int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	forward, right, up := cameraBasis(origin, target)

	fov := s.FOV
	if fov <= 0 {
		fov = defaultFOV
	}
	far := s.Far
	if far <= 0 {
		far = defaultFarClip
	}
	halfH := math.Tan(fov * math.Pi / 360)
	halfW := halfH * float64(width) / float64(height)

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			// Row 0 is the top of the image.
			v := (1 - 2*(float64(y)+0.5)/float64(height)) * halfH
			for x := 0; x < width; x++ {
				u := (2*(float64(x)+0.5)/float64(width) - 1) * halfW
				dir := r3.Add(forward, r3.Add(r3.Scale(u, right), r3.Scale(v, up)))
				img.SetRGBA(x, y, s.trace(geom.NewRay(origin, dir, far)))
			}
		}
	})
	return img, nil
}

func (s *SoftRenderer) trace(r geom.Ray) color.RGBA {
	c := s.Background
	for _, l := range s.Layers {
		if hit, ok := l.Mesh.Closest(r); ok {
			r.Length = hit.T
			c = l.Color
		}
	}
	return c
}

// cameraBasis returns an orthonormal camera frame with world Z as the up
// hint, falling back to Y when looking straight up or down.
func cameraBasis(origin, target r3.Vec) (forward, right, up r3.Vec) {
	forward = r3.Sub(target, origin)
	if r3.Norm(forward) == 0 {
		forward = r3.Vec{X: 1}
	}
	forward = r3.Unit(forward)
	hint := r3.Vec{Z: 1}
	if math.Abs(r3.Dot(forward, hint)) > 0.999 {
		hint = r3.Vec{Y: 1}
	}
	right = r3.Unit(r3.Cross(forward, hint))
	up = r3.Cross(right, forward)
	return forward, right, up
}
