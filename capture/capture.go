// Package capture scores how much of a landmark a tower's facades can see by
// rendering small views from each sample and counting landmark-coloured
// pixels.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/visibility"
)

// LandmarkColor is the reserved colour landmarks are drawn in.
var LandmarkColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// ErrNoRenderer is returned when an Evaluator has no Renderer.
var ErrNoRenderer = errors.New("capture: no renderer")

// Defaults.
const (
	DefaultWidth        = 10
	DefaultHeight       = 10
	DefaultLookDistance = 10.0
	jpegQuality         = 95
)

// Renderer produces a view from origin looking at target.
type Renderer interface {
	Render(origin, target r3.Vec, width, height int) (image.Image, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(origin, target r3.Vec, width, height int) (image.Image, error)

// Render calls f.
func (f RendererFunc) Render(origin, target r3.Vec, width, height int) (image.Image, error) {
	return f(origin, target, width, height)
}

// Shot is the outcome for one sample.
type Shot struct {
	Sample   visibility.Sample
	Landmark int // landmark pixels
	Total    int
	Fraction float64
	Band     visibility.Band
}

// Result aggregates every shot.
type Result struct {
	Shots      []Shot
	Landmark   int
	Total      int
	Score      float64 // 100 * Landmark / Total
	Degenerate bool    // nothing rendered; Score is 0
}

// Evaluator renders one view per sample.
type Evaluator struct {
	Renderer     Renderer
	Width        int
	Height       int
	LookDistance float64 // target distance along the sample normal
	SaveDir      string  // when set, each view is written as point<i>.jpg
}

// NewEvaluator returns an evaluator with the default 10x10 view size.
func NewEvaluator(r Renderer) Evaluator {
	return Evaluator{
		Renderer:     r,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		LookDistance: DefaultLookDistance,
	}
}

// Evaluate renders and scores every sample.
func (e Evaluator) Evaluate(ctx context.Context, samples []visibility.Sample) (Result, error) {
	if e.Renderer == nil {
		return Result{}, ErrNoRenderer
	}
	w, h := e.Width, e.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	look := e.LookDistance
	if look <= 0 {
		look = DefaultLookDistance
	}

	var res Result
	res.Shots = make([]Shot, 0, len(samples))
	for i, smp := range samples {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		target := r3.Add(smp.Point, r3.Scale(look, smp.Normal))
		img, err := e.Renderer.Render(smp.Point, target, w, h)
		if err != nil {
			return Result{}, fmt.Errorf("render point %d: %w", i, err)
		}
		if e.SaveDir != "" {
			path := filepath.Join(e.SaveDir, fmt.Sprintf("point%d.jpg", i))
			if err := imgio.Save(path, img, imgio.JPEGEncoder(jpegQuality)); err != nil {
				return Result{}, fmt.Errorf("save capture: %w", err)
			}
		}

		landmark, total := CountLandmark(img)
		shot := Shot{Sample: smp, Landmark: landmark, Total: total}
		if total > 0 {
			shot.Fraction = float64(landmark) / float64(total)
		}
		shot.Band = visibility.StrictBandOf(shot.Fraction)
		res.Shots = append(res.Shots, shot)
		res.Landmark += landmark
		res.Total += total
	}

	if res.Total == 0 {
		res.Degenerate = true
		return res, nil
	}
	res.Score = 100 * float64(res.Landmark) / float64(res.Total)
	return res, nil
}

// CountLandmark returns the number of landmark-coloured pixels and the total
// pixel count of img.
func CountLandmark(img image.Image) (landmark, total int) {
	rgba := clone.AsShallowRGBA(img)
	b := rgba.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[4*x : 4*x+4]
			if px[0] == LandmarkColor.R && px[1] == LandmarkColor.G &&
				px[2] == LandmarkColor.B && px[3] == LandmarkColor.A {
				landmark++
			}
		}
	}
	return landmark, b.Dx() * b.Dy()
}
